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
)

type storeRepository struct {
	db *gorm.DB
}

func NewStoreRepository(db *gorm.DB) *storeRepository {
	return &storeRepository{db: db}
}

func (r *storeRepository) Create(ctx context.Context, store *models.Store) error {
	if err := r.db.WithContext(ctx).Create(store).Error; err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	return nil
}

func (r *storeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var store models.Store
	err := r.db.WithContext(ctx).Preload("Locations", byPosition).First(&store, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("store", id)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &store, nil
}

func (r *storeRepository) List(ctx context.Context, activeOnly bool) ([]models.Store, error) {
	query := r.db.WithContext(ctx).Preload("Locations", byPosition).Order("name ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var stores []models.Store
	if err := query.Find(&stores).Error; err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	return stores, nil
}

func (r *storeRepository) Update(ctx context.Context, store *models.Store) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(store).Error; err != nil {
		return fmt.Errorf("failed to update store: %w", err)
	}
	return nil
}

func (r *storeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Select(clause.Associations).Delete(&models.Store{BaseModel: models.BaseModel{ID: id}})
	if result.Error != nil {
		return fmt.Errorf("failed to delete store: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("store", id)
	}
	return nil
}

func (r *storeRepository) UpsertLocations(ctx context.Context, storeID uuid.UUID, locations []models.Location) ([]models.Location, error) {
	err := database.WithTransaction(r.db.WithContext(ctx), func(tx *gorm.DB) error {
		var existing []models.Location
		if err := tx.Where("store_id = ?", storeID).Find(&existing).Error; err != nil {
			return fmt.Errorf("failed to load locations: %w", err)
		}

		byRemoteID := make(map[string]*models.Location, len(existing))
		for i := range existing {
			byRemoteID[existing[i].ShopifyLocationID] = &existing[i]
		}

		seen := make(map[string]bool, len(locations))
		for i, incoming := range locations {
			seen[incoming.ShopifyLocationID] = true
			if current, ok := byRemoteID[incoming.ShopifyLocationID]; ok {
				current.Name = incoming.Name
				current.IsActive = incoming.IsActive
				current.FulfillsOnlineOrders = incoming.FulfillsOnlineOrders
				current.ShipsInventory = incoming.ShipsInventory
				if err := tx.Save(current).Error; err != nil {
					return fmt.Errorf("failed to update location: %w", err)
				}
				continue
			}

			incoming.ID = uuid.Nil
			incoming.StoreID = storeID
			if incoming.Position == 0 {
				incoming.Position = len(existing) + i + 1
			}
			if err := tx.Create(&incoming).Error; err != nil {
				return fmt.Errorf("failed to create location: %w", err)
			}
		}

		for _, current := range existing {
			if seen[current.ShopifyLocationID] || !current.IsActive {
				continue
			}
			if err := tx.Model(&models.Location{}).Where("id = ?", current.ID).Update("is_active", false).Error; err != nil {
				return fmt.Errorf("failed to deactivate location: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []models.Location
	if err := r.db.WithContext(ctx).Where("store_id = ?", storeID).Order("position ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to reload locations: %w", err)
	}
	return out, nil
}

func (r *storeRepository) UpdateLocation(ctx context.Context, location *models.Location) error {
	result := r.db.WithContext(ctx).Model(location).
		Where("store_id = ?", location.StoreID).
		Select("Position", "Capacity", "IsActive", "ShipsInventory", "FulfillsOnlineOrders").
		Updates(location)
	if result.Error != nil {
		return fmt.Errorf("failed to update location: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("location", location.ID)
	}
	return nil
}
