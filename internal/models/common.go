// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// LocationQuantities maps a location id to the quantity assigned to it.
type LocationQuantities map[uuid.UUID]int

func (l LocationQuantities) Total() int {
	total := 0
	for _, qty := range l {
		total += qty
	}
	return total
}

func (l LocationQuantities) Clone() LocationQuantities {
	if l == nil {
		return nil
	}
	out := make(LocationQuantities, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

func (l LocationQuantities) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *LocationQuantities) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}

	return json.Unmarshal(bytes, l)
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported jsonb source type %T", value)
	}
}

// Enums
type ProductStatus string

const (
	ProductStatusDraft    ProductStatus = "DRAFT"
	ProductStatusActive   ProductStatus = "ACTIVE"
	ProductStatusArchived ProductStatus = "ARCHIVED"
)

func (s ProductStatus) Valid() bool {
	switch s {
	case ProductStatusDraft, ProductStatusActive, ProductStatusArchived:
		return true
	}
	return false
}

type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "pending"
	SyncStatusSyncing   SyncStatus = "syncing"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed
}

// Rank orders statuses along pending -> syncing -> terminal.
func (s SyncStatus) Rank() int {
	switch s {
	case SyncStatusPending:
		return 0
	case SyncStatusSyncing:
		return 1
	case SyncStatusCompleted, SyncStatusFailed:
		return 2
	}
	return -1
}

type WeightUnit string

const (
	WeightUnitGrams     WeightUnit = "GRAMS"
	WeightUnitKilograms WeightUnit = "KILOGRAMS"
	WeightUnitOunces    WeightUnit = "OUNCES"
	WeightUnitPounds    WeightUnit = "POUNDS"
)
