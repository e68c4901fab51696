package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/multistore-backend/internal/apperrors"
	"github.com/javajoker/multistore-backend/internal/database"
	"github.com/javajoker/multistore-backend/internal/models"
	"github.com/javajoker/multistore-backend/internal/repository"
)

type syncResultRepository struct {
	db *gorm.DB
}

func NewSyncResultRepository(db *gorm.DB) *syncResultRepository {
	return &syncResultRepository{db: db}
}

func (r *syncResultRepository) Get(ctx context.Context, productID, storeID uuid.UUID) (*models.SyncResult, error) {
	var result models.SyncResult
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND store_id = ?", productID, storeID).
		Take(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("sync_result", storeID)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &result, nil
}

func (r *syncResultRepository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.SyncResult, error) {
	var out []models.SyncResult
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("updated_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sync results: %w", err)
	}
	return out, nil
}

func (r *syncResultRepository) ListByStatus(ctx context.Context, statuses ...models.SyncStatus) ([]models.SyncResult, error) {
	var out []models.SyncResult
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("updated_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sync results: %w", err)
	}
	return out, nil
}

// Upsert serialises writers for one (product, store) with a transaction
// scoped advisory lock, which also covers the first insert where no row
// exists yet to lock.
func (r *syncResultRepository) Upsert(ctx context.Context, productID, storeID uuid.UUID, fn repository.SyncResultMutator) (*models.SyncResult, error) {
	var saved *models.SyncResult
	err := database.WithTransaction(r.db.WithContext(ctx), func(tx *gorm.DB) error {
		key := productID.String() + ":" + storeID.String()
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
			return fmt.Errorf("failed to lock sync result: %w", err)
		}

		var existing *models.SyncResult
		var current models.SyncResult
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("product_id = ? AND store_id = ?", productID, storeID).
			Take(&current).Error
		switch {
		case err == nil:
			existing = &current
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("database error: %w", err)
		}

		next, err := fn(existing)
		if err != nil {
			return err
		}
		next.ProductID = productID
		next.StoreID = storeID

		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}, {Name: "store_id"}},
			UpdateAll: true,
		}).Create(next).Error
		if err != nil {
			return fmt.Errorf("failed to save sync result: %w", err)
		}
		saved = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *syncResultRepository) DeleteByProduct(ctx context.Context, productID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).Delete(&models.SyncResult{}).Error; err != nil {
		return fmt.Errorf("failed to delete sync results: %w", err)
	}
	return nil
}
