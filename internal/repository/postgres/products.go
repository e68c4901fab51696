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
	"github.com/javajoker/multistore-backend/internal/utils"
)

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *productRepository {
	return &productRepository{db: db}
}

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (r *productRepository) Create(ctx context.Context, product *models.Product) error {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (r *productRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Options", byPosition).
		Preload("Variants", byPosition).
		Preload("Media", byPosition).
		First(&product, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("product", id)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &product, nil
}

func (r *productRepository) List(ctx context.Context, filter repository.ProductFilter) ([]models.Product, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("title ILIKE ? OR vendor ILIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "updated_at", "title", "status"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var products []models.Product
	if err := query.Preload("Variants", byPosition).Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

// Update keeps variant ids stable: existing variants are saved in place and
// only variants missing from the product are removed.
func (r *productRepository) Update(ctx context.Context, product *models.Product) error {
	return database.WithTransaction(r.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(product).Error; err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}

		if err := tx.Unscoped().Where("product_id = ?", product.ID).Delete(&models.ProductOption{}).Error; err != nil {
			return fmt.Errorf("failed to clear options: %w", err)
		}
		for i := range product.Options {
			product.Options[i].ID = uuid.Nil
			product.Options[i].ProductID = product.ID
		}
		if len(product.Options) > 0 {
			if err := tx.Create(&product.Options).Error; err != nil {
				return fmt.Errorf("failed to save options: %w", err)
			}
		}

		keep := make([]uuid.UUID, 0, len(product.Variants))
		for i := range product.Variants {
			v := &product.Variants[i]
			v.ProductID = product.ID
			if v.ID == uuid.Nil {
				if err := tx.Create(v).Error; err != nil {
					return fmt.Errorf("failed to create variant: %w", err)
				}
			} else if err := tx.Save(v).Error; err != nil {
				return fmt.Errorf("failed to save variant: %w", err)
			}
			keep = append(keep, v.ID)
		}
		stale := tx.Unscoped().Where("product_id = ?", product.ID)
		if len(keep) > 0 {
			stale = stale.Where("id NOT IN ?", keep)
		}
		if err := stale.Delete(&models.Variant{}).Error; err != nil {
			return fmt.Errorf("failed to prune variants: %w", err)
		}

		if err := tx.Unscoped().Where("product_id = ?", product.ID).Delete(&models.ProductMedia{}).Error; err != nil {
			return fmt.Errorf("failed to clear media: %w", err)
		}
		for i := range product.Media {
			product.Media[i].ID = uuid.Nil
			product.Media[i].ProductID = product.ID
		}
		if len(product.Media) > 0 {
			if err := tx.Create(&product.Media).Error; err != nil {
				return fmt.Errorf("failed to save media: %w", err)
			}
		}
		return nil
	})
}

func (r *productRepository) GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.Variant, error) {
	var variant models.Variant
	err := r.db.WithContext(ctx).
		Where("id = ? AND product_id = ?", variantID, productID).
		Take(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("variant", variantID)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &variant, nil
}

func (r *productRepository) UpdateVariant(ctx context.Context, variant *models.Variant) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND product_id = ?", variant.ID, variant.ProductID).
		Save(variant)
	if result.Error != nil {
		return fmt.Errorf("failed to update variant: %w", result.Error)
	}
	return nil
}

func (r *productRepository) DeleteVariant(ctx context.Context, productID, variantID uuid.UUID) error {
	result := r.db.WithContext(ctx).Unscoped().
		Where("id = ? AND product_id = ?", variantID, productID).
		Delete(&models.Variant{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete variant: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("variant", variantID)
	}
	return nil
}

func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Select(clause.Associations).Delete(&models.Product{BaseModel: models.BaseModel{ID: id}})
	if result.Error != nil {
		return fmt.Errorf("failed to delete product: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("product", id)
	}
	return nil
}
