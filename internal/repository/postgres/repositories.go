package postgres

import (
	"gorm.io/gorm"

	"github.com/javajoker/multistore-backend/internal/repository"
)

// NewRepositories creates the gorm backed repository set
func NewRepositories(db *gorm.DB) *repository.Repositories {
	return &repository.Repositories{
		Products:    NewProductRepository(db),
		Stores:      NewStoreRepository(db),
		Commitments: NewCommitmentRepository(db),
		SyncResults: NewSyncResultRepository(db),
	}
}
