package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/multistore-backend/internal/models"
)

type commitmentRepository struct {
	db *gorm.DB
}

func NewCommitmentRepository(db *gorm.DB) *commitmentRepository {
	return &commitmentRepository{db: db}
}

func (r *commitmentRepository) ListByVariant(ctx context.Context, productID, variantID uuid.UUID) ([]models.InventoryCommitment, error) {
	var out []models.InventoryCommitment
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND variant_id = ?", productID, variantID).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list commitments: %w", err)
	}
	return out, nil
}

func (r *commitmentRepository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.InventoryCommitment, error) {
	var out []models.InventoryCommitment
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list commitments: %w", err)
	}
	return out, nil
}

func (r *commitmentRepository) Save(ctx context.Context, commitment *models.InventoryCommitment) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "variant_id"}, {Name: "store_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "locations", "attempt_id", "previous", "updated_at"}),
	}).Create(commitment).Error
	if err != nil {
		return fmt.Errorf("failed to save commitment: %w", err)
	}
	return nil
}

func (r *commitmentRepository) Delete(ctx context.Context, productID, variantID, storeID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND variant_id = ? AND store_id = ?", productID, variantID, storeID).
		Delete(&models.InventoryCommitment{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete commitment: %w", err)
	}
	return nil
}

func (r *commitmentRepository) DeleteByVariant(ctx context.Context, productID, variantID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND variant_id = ?", productID, variantID).
		Delete(&models.InventoryCommitment{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete commitments: %w", err)
	}
	return nil
}

func (r *commitmentRepository) DeleteByProduct(ctx context.Context, productID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).Delete(&models.InventoryCommitment{}).Error; err != nil {
		return fmt.Errorf("failed to delete commitments: %w", err)
	}
	return nil
}
