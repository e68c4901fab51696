// internal/repository/interfaces.go
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/javajoker/multistore-backend/internal/models"
	"github.com/javajoker/multistore-backend/internal/utils"
)

type ProductFilter struct {
	utils.PaginationParams
	Status *models.ProductStatus
}

type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	// GetByID loads the product with options, variants and media.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]models.Product, int64, error)
	// Update saves the product row and replaces its options, variants and media.
	Update(ctx context.Context, product *models.Product) error
	GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.Variant, error)
	UpdateVariant(ctx context.Context, variant *models.Variant) error
	DeleteVariant(ctx context.Context, productID, variantID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type StoreRepository interface {
	Create(ctx context.Context, store *models.Store) error
	// GetByID loads the store with its locations.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
	List(ctx context.Context, activeOnly bool) ([]models.Store, error)
	Update(ctx context.Context, store *models.Store) error
	Delete(ctx context.Context, id uuid.UUID) error
	// UpsertLocations matches on ShopifyLocationID and deactivates locations
	// missing from the given list.
	UpsertLocations(ctx context.Context, storeID uuid.UUID, locations []models.Location) ([]models.Location, error)
	UpdateLocation(ctx context.Context, location *models.Location) error
}

type CommitmentRepository interface {
	ListByVariant(ctx context.Context, productID, variantID uuid.UUID) ([]models.InventoryCommitment, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.InventoryCommitment, error)
	Save(ctx context.Context, commitment *models.InventoryCommitment) error
	Delete(ctx context.Context, productID, variantID, storeID uuid.UUID) error
	DeleteByVariant(ctx context.Context, productID, variantID uuid.UUID) error
	DeleteByProduct(ctx context.Context, productID uuid.UUID) error
}

// SyncResultMutator receives the stored result (nil when none exists) and
// returns the record to save, or an error to leave the row unchanged.
type SyncResultMutator func(existing *models.SyncResult) (*models.SyncResult, error)

type SyncResultRepository interface {
	Get(ctx context.Context, productID, storeID uuid.UUID) (*models.SyncResult, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.SyncResult, error)
	ListByStatus(ctx context.Context, statuses ...models.SyncStatus) ([]models.SyncResult, error)
	// Upsert runs fn and saves its result atomically per (product, store).
	Upsert(ctx context.Context, productID, storeID uuid.UUID, fn SyncResultMutator) (*models.SyncResult, error)
	DeleteByProduct(ctx context.Context, productID uuid.UUID) error
}

type Repositories struct {
	Products    ProductRepository
	Stores      StoreRepository
	Commitments CommitmentRepository
	SyncResults SyncResultRepository
}
