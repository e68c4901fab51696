// Package memory keeps every repository in process memory. It backs
// STORAGE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/multistore-backend/internal/apperrors"
	"github.com/javajoker/multistore-backend/internal/models"
	"github.com/javajoker/multistore-backend/internal/repository"
)

func NewRepositories() *repository.Repositories {
	return &repository.Repositories{
		Products:    NewProductRepository(),
		Stores:      NewStoreRepository(),
		Commitments: NewCommitmentRepository(),
		SyncResults: NewSyncResultRepository(),
	}
}

func stamp(base *models.BaseModel, now time.Time) {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	if base.CreatedAt.IsZero() {
		base.CreatedAt = now
	}
	base.UpdatedAt = now
}

type ProductRepository struct {
	mu       sync.RWMutex
	products map[uuid.UUID]*models.Product
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{products: make(map[uuid.UUID]*models.Product)}
}

func (r *ProductRepository) assignIDs(product *models.Product) {
	now := time.Now()
	stamp(&product.BaseModel, now)
	for i := range product.Options {
		stamp(&product.Options[i].BaseModel, now)
		product.Options[i].ProductID = product.ID
	}
	for i := range product.Variants {
		stamp(&product.Variants[i].BaseModel, now)
		product.Variants[i].ProductID = product.ID
	}
	for i := range product.Media {
		stamp(&product.Media[i].BaseModel, now)
		product.Media[i].ProductID = product.ID
	}
}

func (r *ProductRepository) Create(_ context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.assignIDs(product)
	r.products[product.ID] = product.Clone()
	return nil
}

func (r *ProductRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[id]
	if !ok {
		return nil, apperrors.NewNotFound("product", id)
	}
	return product.Clone(), nil
}

func (r *ProductRepository) List(_ context.Context, filter repository.ProductFilter) ([]models.Product, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	matched := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Title), search) && !strings.Contains(strings.ToLower(p.Vendor), search) {
			continue
		}
		matched = append(matched, *p.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if filter.Order == "asc" {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if filter.Limit > 0 {
		start := (max(filter.Page, 1) - 1) * filter.Limit
		if start > len(matched) {
			start = len(matched)
		}
		matched = matched[start:min(start+filter.Limit, len(matched))]
	}
	return matched, total, nil
}

func (r *ProductRepository) Update(_ context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.products[product.ID]
	if !ok {
		return apperrors.NewNotFound("product", product.ID)
	}
	product.CreatedAt = current.CreatedAt
	r.assignIDs(product)
	r.products[product.ID] = product.Clone()
	return nil
}

func (r *ProductRepository) GetVariant(_ context.Context, productID, variantID uuid.UUID) (*models.Variant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[productID]
	if !ok {
		return nil, apperrors.NewNotFound("product", productID)
	}
	variant := product.VariantByID(variantID)
	if variant == nil {
		return nil, apperrors.NewNotFound("variant", variantID)
	}
	out := *variant
	return &out, nil
}

func (r *ProductRepository) UpdateVariant(_ context.Context, variant *models.Variant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[variant.ProductID]
	if !ok {
		return apperrors.NewNotFound("product", variant.ProductID)
	}
	current := product.VariantByID(variant.ID)
	if current == nil {
		return apperrors.NewNotFound("variant", variant.ID)
	}
	variant.UpdatedAt = time.Now()
	*current = *variant
	return nil
}

func (r *ProductRepository) DeleteVariant(_ context.Context, productID, variantID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[productID]
	if !ok {
		return apperrors.NewNotFound("product", productID)
	}
	for i := range product.Variants {
		if product.Variants[i].ID == variantID {
			product.Variants = append(product.Variants[:i], product.Variants[i+1:]...)
			return nil
		}
	}
	return apperrors.NewNotFound("variant", variantID)
}

func (r *ProductRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return apperrors.NewNotFound("product", id)
	}
	delete(r.products, id)
	return nil
}

type StoreRepository struct {
	mu     sync.RWMutex
	stores map[uuid.UUID]*models.Store
}

func NewStoreRepository() *StoreRepository {
	return &StoreRepository{stores: make(map[uuid.UUID]*models.Store)}
}

func cloneStore(s *models.Store) *models.Store {
	out := *s
	out.Locations = make([]models.Location, len(s.Locations))
	for i, loc := range s.Locations {
		if loc.Capacity != nil {
			capacity := *loc.Capacity
			loc.Capacity = &capacity
		}
		out.Locations[i] = loc
	}
	models.SortByPosition(out.Locations)
	return &out
}

func (r *StoreRepository) Create(_ context.Context, store *models.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	stamp(&store.BaseModel, now)
	for i := range store.Locations {
		stamp(&store.Locations[i].BaseModel, now)
		store.Locations[i].StoreID = store.ID
	}
	for _, existing := range r.stores {
		if strings.EqualFold(existing.Domain, store.Domain) {
			return apperrors.NewValidationError("store %s is already connected", store.Domain)
		}
	}
	r.stores[store.ID] = cloneStore(store)
	return nil
}

func (r *StoreRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	store, ok := r.stores[id]
	if !ok {
		return nil, apperrors.NewNotFound("store", id)
	}
	return cloneStore(store), nil
}

func (r *StoreRepository) List(_ context.Context, activeOnly bool) ([]models.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Store, 0, len(r.stores))
	for _, s := range r.stores {
		if activeOnly && !s.IsActive {
			continue
		}
		out = append(out, *cloneStore(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *StoreRepository) Update(_ context.Context, store *models.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.stores[store.ID]
	if !ok {
		return apperrors.NewNotFound("store", store.ID)
	}
	next := cloneStore(store)
	next.Locations = current.Locations
	next.UpdatedAt = time.Now()
	r.stores[store.ID] = next
	return nil
}

func (r *StoreRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stores[id]; !ok {
		return apperrors.NewNotFound("store", id)
	}
	delete(r.stores, id)
	return nil
}

func (r *StoreRepository) UpsertLocations(_ context.Context, storeID uuid.UUID, locations []models.Location) ([]models.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	store, ok := r.stores[storeID]
	if !ok {
		return nil, apperrors.NewNotFound("store", storeID)
	}

	now := time.Now()
	seen := make(map[string]bool, len(locations))
	existing := len(store.Locations)
	for i, incoming := range locations {
		seen[incoming.ShopifyLocationID] = true
		matched := false
		for j := range store.Locations {
			current := &store.Locations[j]
			if current.ShopifyLocationID != incoming.ShopifyLocationID {
				continue
			}
			current.Name = incoming.Name
			current.IsActive = incoming.IsActive
			current.FulfillsOnlineOrders = incoming.FulfillsOnlineOrders
			current.ShipsInventory = incoming.ShipsInventory
			current.UpdatedAt = now
			matched = true
			break
		}
		if matched {
			continue
		}
		incoming.ID = uuid.Nil
		stamp(&incoming.BaseModel, now)
		incoming.StoreID = storeID
		if incoming.Position == 0 {
			incoming.Position = existing + i + 1
		}
		store.Locations = append(store.Locations, incoming)
	}
	for j := range store.Locations {
		if !seen[store.Locations[j].ShopifyLocationID] {
			store.Locations[j].IsActive = false
		}
	}

	return cloneStore(store).Locations, nil
}

func (r *StoreRepository) UpdateLocation(_ context.Context, location *models.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	store, ok := r.stores[location.StoreID]
	if !ok {
		return apperrors.NewNotFound("store", location.StoreID)
	}
	current := store.LocationByID(location.ID)
	if current == nil {
		return apperrors.NewNotFound("location", location.ID)
	}
	current.Position = location.Position
	current.Capacity = location.Capacity
	current.IsActive = location.IsActive
	current.ShipsInventory = location.ShipsInventory
	current.FulfillsOnlineOrders = location.FulfillsOnlineOrders
	current.UpdatedAt = time.Now()
	return nil
}

type commitmentKey struct {
	product, variant, store uuid.UUID
}

type CommitmentRepository struct {
	mu          sync.RWMutex
	commitments map[commitmentKey]models.InventoryCommitment
}

func NewCommitmentRepository() *CommitmentRepository {
	return &CommitmentRepository{commitments: make(map[commitmentKey]models.InventoryCommitment)}
}

func (r *CommitmentRepository) list(match func(commitmentKey) bool) []models.InventoryCommitment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.InventoryCommitment, 0)
	for key, c := range r.commitments {
		if match(key) {
			c.Locations = c.Locations.Clone()
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoreID.String() < out[j].StoreID.String() })
	return out
}

func (r *CommitmentRepository) ListByVariant(_ context.Context, productID, variantID uuid.UUID) ([]models.InventoryCommitment, error) {
	return r.list(func(k commitmentKey) bool { return k.product == productID && k.variant == variantID }), nil
}

func (r *CommitmentRepository) ListByProduct(_ context.Context, productID uuid.UUID) ([]models.InventoryCommitment, error) {
	return r.list(func(k commitmentKey) bool { return k.product == productID }), nil
}

func (r *CommitmentRepository) Save(_ context.Context, commitment *models.InventoryCommitment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	commitment.UpdatedAt = time.Now()
	stored := *commitment
	stored.Locations = commitment.Locations.Clone()
	if commitment.Previous != nil {
		previous := *commitment.Previous
		previous.Locations = commitment.Previous.Locations.Clone()
		stored.Previous = &previous
	}
	r.commitments[commitmentKey{commitment.ProductID, commitment.VariantID, commitment.StoreID}] = stored
	return nil
}

func (r *CommitmentRepository) remove(match func(commitmentKey) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.commitments {
		if match(key) {
			delete(r.commitments, key)
		}
	}
}

func (r *CommitmentRepository) Delete(_ context.Context, productID, variantID, storeID uuid.UUID) error {
	r.remove(func(k commitmentKey) bool { return k == commitmentKey{productID, variantID, storeID} })
	return nil
}

func (r *CommitmentRepository) DeleteByVariant(_ context.Context, productID, variantID uuid.UUID) error {
	r.remove(func(k commitmentKey) bool { return k.product == productID && k.variant == variantID })
	return nil
}

func (r *CommitmentRepository) DeleteByProduct(_ context.Context, productID uuid.UUID) error {
	r.remove(func(k commitmentKey) bool { return k.product == productID })
	return nil
}

type resultKey struct {
	product, store uuid.UUID
}

type SyncResultRepository struct {
	mu      sync.Mutex
	results map[resultKey]models.SyncResult
}

func NewSyncResultRepository() *SyncResultRepository {
	return &SyncResultRepository{results: make(map[resultKey]models.SyncResult)}
}

func (r *SyncResultRepository) Get(_ context.Context, productID, storeID uuid.UUID) (*models.SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, ok := r.results[resultKey{productID, storeID}]
	if !ok {
		return nil, apperrors.NewNotFound("sync_result", storeID)
	}
	return &result, nil
}

func (r *SyncResultRepository) ListByProduct(_ context.Context, productID uuid.UUID) ([]models.SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.SyncResult, 0)
	for key, result := range r.results {
		if key.product == productID {
			out = append(out, result)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].StoreID.String() < out[j].StoreID.String()
	})
	return out, nil
}

func (r *SyncResultRepository) ListByStatus(_ context.Context, statuses ...models.SyncStatus) ([]models.SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.SyncResult, 0)
	for _, result := range r.results {
		for _, status := range statuses {
			if result.Status == status {
				out = append(out, result)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *SyncResultRepository) Upsert(_ context.Context, productID, storeID uuid.UUID, fn repository.SyncResultMutator) (*models.SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := resultKey{productID, storeID}
	var existing *models.SyncResult
	if current, ok := r.results[key]; ok {
		existing = &current
	}

	next, err := fn(existing)
	if err != nil {
		return nil, err
	}
	next.ProductID = productID
	next.StoreID = storeID
	r.results[key] = *next

	saved := *next
	return &saved, nil
}

func (r *SyncResultRepository) DeleteByProduct(_ context.Context, productID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.results {
		if key.product == productID {
			delete(r.results, key)
		}
	}
	return nil
}
