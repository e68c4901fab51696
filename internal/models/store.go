// internal/models/store.go
package models

import (
	"sort"

	"github.com/google/uuid"
)

// Store is a connected Shopify shop.
type Store struct {
	BaseModel
	Name           string `json:"name" gorm:"size:255;not null"`
	Domain         string `json:"domain" gorm:"size:255;not null;uniqueIndex"`
	IsActive       bool   `json:"is_active" gorm:"not null"`
	APIVersion     string `json:"api_version" gorm:"size:20"`
	EncryptedToken string `json:"-" gorm:"type:text;not null"`

	// Relationships
	Locations []Location `json:"locations,omitempty" gorm:"foreignKey:StoreID;constraint:OnDelete:CASCADE"`
}

type Location struct {
	BaseModel
	StoreID              uuid.UUID `json:"store_id" gorm:"type:uuid;not null;index"`
	ShopifyLocationID    string    `json:"shopify_location_id" gorm:"size:100;index"`
	Name                 string    `json:"name" gorm:"size:255;not null"`
	Position             int       `json:"position"`
	IsActive             bool      `json:"is_active" gorm:"not null"`
	FulfillsOnlineOrders bool      `json:"fulfills_online_orders" gorm:"not null"`
	ShipsInventory       bool      `json:"ships_inventory" gorm:"not null"`
	Capacity             *int      `json:"capacity,omitempty"`
}

// ActiveLocations returns the store's active locations in declared order.
func (s *Store) ActiveLocations() []Location {
	active := make([]Location, 0, len(s.Locations))
	for _, loc := range s.Locations {
		if loc.IsActive {
			active = append(active, loc)
		}
	}
	SortByPosition(active)
	return active
}

func (s *Store) LocationByID(id uuid.UUID) *Location {
	for i := range s.Locations {
		if s.Locations[i].ID == id {
			return &s.Locations[i]
		}
	}
	return nil
}

// SortByPosition orders locations by declared position, then by id.
func SortByPosition(locations []Location) {
	sort.SliceStable(locations, func(i, j int) bool {
		if locations[i].Position != locations[j].Position {
			return locations[i].Position < locations[j].Position
		}
		return locations[i].ID.String() < locations[j].ID.String()
	})
}
