// internal/models/sync.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SyncResult is the latest known outcome of pushing a product to a store.
type SyncResult struct {
	ProductID        uuid.UUID  `json:"product_id" gorm:"type:uuid;primaryKey"`
	StoreID          uuid.UUID  `json:"store_id" gorm:"type:uuid;primaryKey"`
	Status           SyncStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	ShopifyProductID string     `json:"shopify_product_id,omitempty" gorm:"size:100"`
	Error            string     `json:"error,omitempty" gorm:"type:text"`
	AttemptID        uuid.UUID  `json:"attempt_id" gorm:"type:uuid;not null"`
	PayloadHash      string     `json:"-" gorm:"size:64"`
	Timestamp        time.Time  `json:"timestamp" gorm:"column:updated_at;not null"`
}

func (SyncResult) TableName() string {
	return "sync_results"
}

// InventoryCommitment is the quantity of one variant promised to one store.
// AttemptID is the sync attempt that wrote the row; Previous is the row it
// replaced, kept so that attempt alone can put it back.
type InventoryCommitment struct {
	ProductID uuid.UUID           `json:"product_id" gorm:"type:uuid;primaryKey"`
	VariantID uuid.UUID           `json:"variant_id" gorm:"type:uuid;primaryKey"`
	StoreID   uuid.UUID           `json:"store_id" gorm:"type:uuid;primaryKey"`
	Quantity  int                 `json:"quantity" gorm:"not null"`
	Locations LocationQuantities  `json:"locations" gorm:"type:jsonb"`
	AttemptID uuid.UUID           `json:"attempt_id" gorm:"type:uuid;index"`
	Previous  *CommitmentSnapshot `json:"previous,omitempty" gorm:"type:jsonb"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Snapshot copies the fields Restore needs to rebuild this row.
func (c *InventoryCommitment) Snapshot() *CommitmentSnapshot {
	return &CommitmentSnapshot{
		AttemptID: c.AttemptID,
		Quantity:  c.Quantity,
		Locations: c.Locations.Clone(),
	}
}

type CommitmentSnapshot struct {
	AttemptID uuid.UUID          `json:"attempt_id"`
	Quantity  int                `json:"quantity"`
	Locations LocationQuantities `json:"locations"`
}

func (s *CommitmentSnapshot) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *CommitmentSnapshot) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}

	return json.Unmarshal(bytes, s)
}
