package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/multistore-backend/internal/allocation"
	"github.com/javajoker/multistore-backend/internal/config"
	"github.com/javajoker/multistore-backend/internal/models"
	"github.com/javajoker/multistore-backend/internal/repository"
	"github.com/javajoker/multistore-backend/internal/repository/memory"
	"github.com/javajoker/multistore-backend/internal/shopify"
	"github.com/javajoker/multistore-backend/internal/utils"
)

// fakeAdapter records pushes per shop domain.
type fakeAdapter struct {
	mu        sync.Mutex
	calls     map[string]int
	payloads  map[string]*shopify.ProductPayload
	failures  map[string]error
	blockers  map[string]chan struct{}
	started   chan string
	locations []shopify.Location
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		calls:    make(map[string]int),
		payloads: make(map[string]*shopify.ProductPayload),
		failures: make(map[string]error),
		blockers: make(map[string]chan struct{}),
		started:  make(chan string, 16),
	}
}

func (f *fakeAdapter) failFor(domain string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[domain] = err
}

// blockFor holds pushes to domain until the returned channel is closed.
func (f *fakeAdapter) blockFor(domain string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.blockers[domain] = ch
	return ch
}

func (f *fakeAdapter) callCount(domain string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[domain]
}

func (f *fakeAdapter) lastPayload(domain string) *shopify.ProductPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[domain]
}

func (f *fakeAdapter) UpsertProduct(ctx context.Context, creds shopify.Credentials, payload *shopify.ProductPayload) (string, error) {
	f.mu.Lock()
	f.calls[creds.Domain]++
	copied := *payload
	f.payloads[creds.Domain] = &copied
	failure := f.failures[creds.Domain]
	blocker := f.blockers[creds.Domain]
	f.mu.Unlock()

	select {
	case f.started <- creds.Domain:
	default:
	}

	if blocker != nil {
		<-blocker
	}
	if failure != nil {
		return "", failure
	}
	if payload.ShopifyProductID != "" {
		return payload.ShopifyProductID, nil
	}
	return "gid://shopify/Product/" + creds.Domain, nil
}

func (f *fakeAdapter) ListLocations(ctx context.Context, creds shopify.Credentials) ([]shopify.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures[creds.Domain]; err != nil {
		return nil, err
	}
	return append([]shopify.Location(nil), f.locations...), nil
}

var errStoreRejected = errors.New("product title is invalid")

type syncEnv struct {
	repos   *repository.Repositories
	ledger  *allocation.Ledger
	tracker *SyncTracker
	adapter *fakeAdapter
	secrets *utils.SecretBox
	svc     *SyncService
}

func newSyncEnv(t *testing.T, cfg config.SyncConfig) *syncEnv {
	t.Helper()

	secrets, err := utils.NewSecretBox("test-credentials-key")
	require.NoError(t, err)

	repos := memory.NewRepositories()
	ledger := allocation.NewLedger(repos.Commitments, allocation.NewLocalLocker())
	tracker := NewSyncTracker(repos.SyncResults)
	adapter := newFakeAdapter()

	if cfg.PushTimeout == 0 {
		cfg.PushTimeout = 5 * time.Second
	}

	return &syncEnv{
		repos:   repos,
		ledger:  ledger,
		tracker: tracker,
		adapter: adapter,
		secrets: secrets,
		svc:     NewSyncService(cfg, repos.Products, repos.Stores, ledger, tracker, adapter, secrets),
	}
}

func (e *syncEnv) addStore(t *testing.T, domain string, active bool) *models.Store {
	t.Helper()

	sealed, err := e.secrets.Seal("shpat_" + domain)
	require.NoError(t, err)

	store := &models.Store{
		Name:           domain,
		Domain:         domain,
		IsActive:       active,
		APIVersion:     "2024-10",
		EncryptedToken: sealed,
		Locations: []models.Location{
			{Name: "Warehouse", ShopifyLocationID: "gid://shopify/Location/" + domain + "-1", Position: 1, IsActive: true, FulfillsOnlineOrders: true, ShipsInventory: true},
			{Name: "Outlet", ShopifyLocationID: "gid://shopify/Location/" + domain + "-2", Position: 2, IsActive: true, ShipsInventory: true},
		},
	}
	require.NoError(t, e.repos.Stores.Create(context.Background(), store))
	return store
}

// addProduct stores a product with one variant per quantity.
func (e *syncEnv) addProduct(t *testing.T, quantities ...int) *models.Product {
	t.Helper()

	values := make(pq.StringArray, len(quantities))
	product := &models.Product{
		Title:  "Linen Shirt",
		Status: models.ProductStatusActive,
		Tags:   pq.StringArray{"summer"},
	}
	for i, qty := range quantities {
		value := string(rune('A' + i))
		values[i] = value
		product.Variants = append(product.Variants, models.Variant{
			Position:          i + 1,
			Title:             value,
			Price:             decimal.RequireFromString("25.00"),
			SKU:               "SHIRT-" + value,
			InventoryQuantity: qty,
			WeightUnit:        models.WeightUnitKilograms,
			OptionValues:      models.OptionValues{{OptionName: "Size", Value: value}},
		})
	}
	product.Options = []models.ProductOption{{Name: "Size", Position: 1, Values: values}}

	require.NoError(t, e.repos.Products.Create(context.Background(), product))
	return product
}

func (e *syncEnv) committed(t *testing.T, productID, variantID uuid.UUID) map[uuid.UUID]int {
	t.Helper()

	commitments, err := e.repos.Commitments.ListByVariant(context.Background(), productID, variantID)
	require.NoError(t, err)

	out := make(map[uuid.UUID]int, len(commitments))
	for _, c := range commitments {
		out[c.StoreID] = c.Quantity
	}
	return out
}

func assign(variantID uuid.UUID, qty int) map[uuid.UUID]int {
	return map[uuid.UUID]int{variantID: qty}
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func stringPtr(s string) *string {
	return &s
}
