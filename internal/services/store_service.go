// internal/services/store_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/multistore-backend/internal/apperrors"
	"github.com/javajoker/multistore-backend/internal/models"
	"github.com/javajoker/multistore-backend/internal/repository"
	"github.com/javajoker/multistore-backend/internal/shopify"
	"github.com/javajoker/multistore-backend/internal/utils"
)

// StoreAdapter is the remote side of a connected store. *shopify.Client
// implements it.
type StoreAdapter interface {
	// UpsertProduct creates or updates the product and returns its remote id.
	UpsertProduct(ctx context.Context, creds shopify.Credentials, payload *shopify.ProductPayload) (string, error)
	ListLocations(ctx context.Context, creds shopify.Credentials) ([]shopify.Location, error)
}

type StoreService struct {
	stores     repository.StoreRepository
	adapter    StoreAdapter
	secrets    *utils.SecretBox
	apiVersion string
}

type CreateStoreRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Domain      string `json:"domain" validate:"required,shop_domain"`
	AccessToken string `json:"access_token" validate:"required"`
	APIVersion  string `json:"api_version,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

type UpdateStoreRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=255"`
	AccessToken *string `json:"access_token,omitempty" validate:"omitempty,min=1"`
	APIVersion  *string `json:"api_version,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

type UpdateLocationRequest struct {
	Position       *int  `json:"position,omitempty" validate:"omitempty,gte=0"`
	Capacity       *int  `json:"capacity,omitempty" validate:"omitempty,gte=0"`
	ClearCapacity  bool  `json:"clear_capacity,omitempty"`
	ShipsInventory *bool `json:"ships_inventory,omitempty"`
}

func NewStoreService(stores repository.StoreRepository, adapter StoreAdapter, secrets *utils.SecretBox, apiVersion string) *StoreService {
	return &StoreService{
		stores:     stores,
		adapter:    adapter,
		secrets:    secrets,
		apiVersion: apiVersion,
	}
}

func (s *StoreService) CreateStore(ctx context.Context, req *CreateStoreRequest) (*models.Store, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationFailed(err)
	}

	sealed, err := s.secrets.Seal(req.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	store := &models.Store{
		Name:           strings.TrimSpace(req.Name),
		Domain:         strings.ToLower(strings.TrimSpace(req.Domain)),
		IsActive:       true,
		APIVersion:     req.APIVersion,
		EncryptedToken: sealed,
	}
	if store.APIVersion == "" {
		store.APIVersion = s.apiVersion
	}
	if req.IsActive != nil {
		store.IsActive = *req.IsActive
	}

	if err := s.stores.Create(ctx, store); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"store_id": store.ID,
		"domain":   store.Domain,
	}).Info("Store connected")

	return store, nil
}

func (s *StoreService) GetStore(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	return s.stores.GetByID(ctx, id)
}

func (s *StoreService) ListStores(ctx context.Context, activeOnly bool) ([]models.Store, error) {
	return s.stores.List(ctx, activeOnly)
}

func (s *StoreService) UpdateStore(ctx context.Context, id uuid.UUID, req *UpdateStoreRequest) (*models.Store, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationFailed(err)
	}

	store, err := s.stores.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		store.Name = strings.TrimSpace(*req.Name)
	}
	if req.APIVersion != nil {
		store.APIVersion = *req.APIVersion
	}
	if req.IsActive != nil {
		store.IsActive = *req.IsActive
	}
	if req.AccessToken != nil {
		sealed, err := s.secrets.Seal(*req.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt access token: %w", err)
		}
		store.EncryptedToken = sealed
	}

	if err := s.stores.Update(ctx, store); err != nil {
		return nil, err
	}
	return s.stores.GetByID(ctx, id)
}

func (s *StoreService) DeleteStore(ctx context.Context, id uuid.UUID) error {
	return s.stores.Delete(ctx, id)
}

// Credentials decrypts the store's access token.
func (s *StoreService) Credentials(store *models.Store) (shopify.Credentials, error) {
	token, err := s.secrets.Open(store.EncryptedToken)
	if err != nil {
		return shopify.Credentials{}, fmt.Errorf("failed to read credentials for store %s: %w", store.ID, err)
	}
	return shopify.Credentials{
		Domain:      store.Domain,
		AccessToken: token,
		APIVersion:  store.APIVersion,
	}, nil
}

// RefreshLocations pulls the store's locations and upserts them. Locations the
// store no longer reports are deactivated.
func (s *StoreService) RefreshLocations(ctx context.Context, id uuid.UUID) ([]models.Location, error) {
	store, err := s.stores.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	creds, err := s.Credentials(store)
	if err != nil {
		return nil, err
	}

	remote, err := s.adapter.ListLocations(ctx, creds)
	if err != nil {
		return nil, &apperrors.StoreAdapterError{StoreID: store.ID, Err: err}
	}

	locations := make([]models.Location, 0, len(remote))
	for _, loc := range remote {
		locations = append(locations, models.Location{
			StoreID:              store.ID,
			ShopifyLocationID:    loc.ID,
			Name:                 loc.Name,
			IsActive:             loc.IsActive,
			FulfillsOnlineOrders: loc.FulfillsOnlineOrders,
			ShipsInventory:       loc.ShipsInventory,
		})
	}

	saved, err := s.stores.UpsertLocations(ctx, store.ID, locations)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"store_id":  store.ID,
		"locations": len(saved),
	}).Info("Store locations refreshed")

	return saved, nil
}

func (s *StoreService) UpdateLocation(ctx context.Context, storeID, locationID uuid.UUID, req *UpdateLocationRequest) (*models.Location, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationFailed(err)
	}

	store, err := s.stores.GetByID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	location := store.LocationByID(locationID)
	if location == nil {
		return nil, apperrors.NewNotFound("location", locationID)
	}

	if req.Position != nil {
		location.Position = *req.Position
	}
	if req.ClearCapacity {
		location.Capacity = nil
	} else if req.Capacity != nil {
		capacity := *req.Capacity
		location.Capacity = &capacity
	}
	if req.ShipsInventory != nil {
		location.ShipsInventory = *req.ShipsInventory
	}

	if err := s.stores.UpdateLocation(ctx, location); err != nil {
		return nil, err
	}
	return location, nil
}

// validationFailed turns validator output into the API's validation error.
func validationFailed(err error) error {
	fields := make(map[string]string)
	for _, fe := range utils.GetValidationErrors(err) {
		fields[fe.Field] = fe.Message
	}
	if len(fields) == 0 {
		return apperrors.NewValidationError("validation failed: %v", err)
	}
	return &apperrors.ValidationError{Message: "validation failed", Fields: fields}
}
