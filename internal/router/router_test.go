// internal/router/router_test.go
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/multistore-backend/internal/allocation"
	"github.com/javajoker/multistore-backend/internal/config"
	"github.com/javajoker/multistore-backend/internal/handlers"
	"github.com/javajoker/multistore-backend/internal/i18n"
	"github.com/javajoker/multistore-backend/internal/repository/memory"
	"github.com/javajoker/multistore-backend/internal/services"
	"github.com/javajoker/multistore-backend/internal/shopify"
	"github.com/javajoker/multistore-backend/internal/utils"
)

// stubShopify answers every store with the same locations and a fixed product id.
type stubShopify struct {
	mu     sync.Mutex
	pushes int
}

func (s *stubShopify) UpsertProduct(_ context.Context, creds shopify.Credentials, _ *shopify.ProductPayload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes++
	return "gid://shopify/Product/" + creds.Domain, nil
}

func (s *stubShopify) ListLocations(context.Context, shopify.Credentials) ([]shopify.Location, error) {
	return []shopify.Location{
		{ID: "gid://shopify/Location/1", Name: "Warehouse", IsActive: true, FulfillsOnlineOrders: true, ShipsInventory: true},
		{ID: "gid://shopify/Location/2", Name: "Outlet", IsActive: true, ShipsInventory: true},
	}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
	Meta json.RawMessage `json:"meta"`
}

type APITestSuite struct {
	suite.Suite
	router      *gin.Engine
	adapter     *stubShopify
	syncService *services.SyncService
	clients     atomic.Int32
}

func (suite *APITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	suite.Require().NoError(i18n.Initialize())
}

func (suite *APITestSuite) SetupTest() {
	cfg := &config.Config{
		Environment: "test",
		Sync: config.SyncConfig{
			PushTimeout:     time.Second,
			MaxConcurrency:  4,
			PollInterval:    10 * time.Millisecond,
			DefaultStrategy: "balanced",
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}

	secrets, err := utils.NewSecretBox("router-test-key")
	suite.Require().NoError(err)

	repos := memory.NewRepositories()
	ledger := allocation.NewLedger(repos.Commitments, allocation.NewLocalLocker())
	tracker := services.NewSyncTracker(repos.SyncResults)
	suite.adapter = &stubShopify{}
	suite.syncService = services.NewSyncService(cfg.Sync, repos.Products, repos.Stores, ledger, tracker, suite.adapter, secrets)

	suite.router = Initialize(cfg, Dependencies{
		Products: services.NewProductService(repos, ledger),
		Stores:   services.NewStoreService(repos.Stores, suite.adapter, secrets, "2024-10"),
		Sync:     suite.syncService,
		Tracker:  tracker,
		Storage:  services.NewLocalStorageService(suite.T().TempDir(), "http://localhost:8080"),
		HealthChecks: map[string]handlers.HealthCheck{
			"database": func(context.Context) error { return nil },
		},
	})
}

func (suite *APITestSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	suite.NoError(suite.syncService.Wait(ctx))
}

// request sends body as JSON from a fresh client address so the per-IP
// limiters never trip.
func (suite *APITestSuite) request(method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewReader(jsonData)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	n := suite.clients.Add(1)
	req.RemoteAddr = fmt.Sprintf("10.1.%d.%d:5000", n/250, n%250+1)

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var response envelope
	if w.Body.Len() > 0 {
		suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	}
	return w, response
}

func (suite *APITestSuite) decode(raw json.RawMessage, out interface{}) {
	suite.Require().NoError(json.Unmarshal(raw, out), string(raw))
}

type productData struct {
	ID       string `json:"id"`
	Variants []struct {
		ID                string `json:"id"`
		Title             string `json:"title"`
		Price             string `json:"price"`
		InventoryQuantity int    `json:"inventory_quantity"`
	} `json:"variants"`
}

func (suite *APITestSuite) createProduct(quantity int) productData {
	w, response := suite.request(http.MethodPost, "/v1/products", map[string]interface{}{
		"title":  "Tee",
		"status": "ACTIVE",
		"options": []map[string]interface{}{
			{"name": "Color", "values": []string{"Red", "Blue"}},
			{"name": "Size", "values": []string{"S", "M"}},
		},
		"generate_variants": true,
		"variant_defaults":  map[string]interface{}{"price": "19.99", "inventory_quantity": quantity},
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var data struct {
		Product productData `json:"product"`
	}
	suite.decode(response.Data, &data)
	return data.Product
}

func (suite *APITestSuite) createStore(domain string) string {
	w, response := suite.request(http.MethodPost, "/v1/stores", map[string]interface{}{
		"name":         domain,
		"domain":       domain,
		"access_token": "shpat_" + domain,
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var data struct {
		Store struct {
			ID string `json:"id"`
		} `json:"store"`
	}
	suite.decode(response.Data, &data)

	w, _ = suite.request(http.MethodPost, "/v1/stores/"+data.Store.ID+"/locations/refresh", nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	return data.Store.ID
}

func (suite *APITestSuite) TestHealth() {
	w, _ := suite.request(http.MethodGet, "/health", nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `"healthy"`)
	suite.NotEmpty(w.Header().Get("X-Request-ID"))
}

func (suite *APITestSuite) TestCORSPreflight() {
	w, _ := suite.request(http.MethodOptions, "/v1/products", nil,
		"Origin", "http://localhost:3000",
		"Access-Control-Request-Method", "POST")
	suite.Equal(http.StatusNoContent, w.Code)
	suite.Equal("http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w, _ = suite.request(http.MethodOptions, "/v1/products", nil,
		"Origin", "http://evil.example.com",
		"Access-Control-Request-Method", "POST")
	suite.Empty(w.Header().Get("Access-Control-Allow-Origin"))
}

func (suite *APITestSuite) TestProductLifecycle() {
	product := suite.createProduct(5)
	suite.Require().Len(product.Variants, 4)
	suite.Equal("Red / S", product.Variants[0].Title)
	suite.Equal("Blue / M", product.Variants[3].Title)

	w, response := suite.request(http.MethodGet, "/v1/products?page=1&limit=10&status=ACTIVE", nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("1", w.Header().Get("X-Total-Count"))
	var listed []productData
	suite.decode(response.Data, &listed)
	suite.Len(listed, 1)

	variantPath := fmt.Sprintf("/v1/products/%s/variants/%s", product.ID, product.Variants[0].ID)
	w, response = suite.request(http.MethodPatch, variantPath, map[string]interface{}{"price": "24.50"})
	suite.Equal(http.StatusOK, w.Code, w.Body.String())
	var patched struct {
		Variant struct {
			Price string `json:"price"`
		} `json:"variant"`
	}
	suite.decode(response.Data, &patched)
	suite.Equal("24.5", patched.Variant.Price)

	w, _ = suite.request(http.MethodDelete, variantPath, nil)
	suite.Equal(http.StatusOK, w.Code)

	w, response = suite.request(http.MethodGet, "/v1/products/"+product.ID, nil)
	suite.Equal(http.StatusOK, w.Code)
	var fetched productData
	suite.decode(response.Data, &fetched)
	suite.Len(fetched.Variants, 3)

	w, _ = suite.request(http.MethodDelete, "/v1/products/"+product.ID, nil)
	suite.Equal(http.StatusOK, w.Code)

	w, response = suite.request(http.MethodGet, "/v1/products/"+product.ID, nil)
	suite.Equal(http.StatusNotFound, w.Code)
	suite.Equal("NOT_FOUND", response.Error.Code)
}

func (suite *APITestSuite) TestCreateProductRejectsTooManyOptions() {
	options := make([]map[string]interface{}, 4)
	for i := range options {
		options[i] = map[string]interface{}{"name": fmt.Sprintf("Option %d", i), "values": []string{"A"}}
	}

	w, response := suite.request(http.MethodPost, "/v1/products", map[string]interface{}{
		"title":             "Tee",
		"options":           options,
		"generate_variants": true,
	})
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("VALIDATION_ERROR", response.Error.Code)
}

func (suite *APITestSuite) TestPreviewVariants() {
	w, response := suite.request(http.MethodPost, "/v1/variants/preview", map[string]interface{}{
		"options": []map[string]interface{}{
			{"name": "Color", "values": []string{"Red", "Blue", "Green"}},
			{"name": "Size", "values": []string{"S", "M"}},
		},
	})
	suite.Equal(http.StatusOK, w.Code, w.Body.String())

	var data struct {
		Count int `json:"count"`
	}
	suite.decode(response.Data, &data)
	suite.Equal(6, data.Count)
}

func (suite *APITestSuite) TestMalformedIDs() {
	w, response := suite.request(http.MethodGet, "/v1/products/not-a-uuid", nil)
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("BAD_REQUEST", response.Error.Code)

	w, _ = suite.request(http.MethodPost, "/v1/stores/not-a-uuid/locations/refresh", nil)
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *APITestSuite) TestCreateStoreRejectsForeignDomain() {
	w, response := suite.request(http.MethodPost, "/v1/stores", map[string]interface{}{
		"name":         "Elsewhere",
		"domain":       "shop.example.com",
		"access_token": "token",
	})
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("VALIDATION_ERROR", response.Error.Code)
	suite.NotContains(w.Body.String(), "token\"")
}

func (suite *APITestSuite) TestSyncRoundTrip() {
	product := suite.createProduct(10)
	first := suite.createStore("first.myshopify.com")
	second := suite.createStore("second.myshopify.com")

	w, response := suite.request(http.MethodPost, "/v1/products/"+product.ID+"/sync", map[string]interface{}{
		"targets": []map[string]interface{}{
			{"store_id": first, "assigned_inventory": map[string]int{product.Variants[0].ID: 4}},
			{"store_id": second},
		},
	})
	suite.Require().Equal(http.StatusAccepted, w.Code, w.Body.String())

	var started struct {
		AttemptID string `json:"attempt_id"`
		Results   []struct {
			StoreID string `json:"store_id"`
			Status  string `json:"status"`
		} `json:"results"`
		PollIntervalMS int64 `json:"poll_interval_ms"`
	}
	suite.decode(response.Data, &started)
	suite.NotEmpty(started.AttemptID)
	suite.Require().Len(started.Results, 2)
	suite.Equal(first, started.Results[0].StoreID)
	suite.Equal(int64(10), started.PollIntervalMS)

	type status struct {
		Settled bool `json:"settled"`
		Summary struct {
			Completed int `json:"completed"`
			Failed    int `json:"failed"`
		} `json:"summary"`
		Results []struct {
			StoreID          string `json:"store_id"`
			Status           string `json:"status"`
			ShopifyProductID string `json:"shopify_product_id"`
		} `json:"results"`
	}

	var final status
	suite.Require().Eventually(func() bool {
		w, response := suite.request(http.MethodGet, "/v1/products/"+product.ID+"/sync-status", nil)
		if w.Code != http.StatusOK {
			return false
		}
		final = status{}
		suite.decode(response.Data, &final)
		return final.Settled
	}, 5*time.Second, 10*time.Millisecond)

	suite.Equal(2, final.Summary.Completed)
	suite.Equal(0, final.Summary.Failed)
	for _, result := range final.Results {
		suite.Equal("completed", result.Status)
		suite.Contains(result.ShopifyProductID, "gid://shopify/Product/")
	}

	// The second store took whatever the first left uncommitted.
	w, response = suite.request(http.MethodPost, "/v1/products/"+product.ID+"/allocation/preview", map[string]interface{}{
		"target": map[string]interface{}{"store_id": second},
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var preview struct {
		Variants []struct {
			VariantID          string `json:"variant_id"`
			CommittedElsewhere int    `json:"committed_elsewhere"`
		} `json:"variants"`
	}
	suite.decode(response.Data, &preview)
	suite.Require().NotEmpty(preview.Variants)
	suite.Equal(product.Variants[0].ID, preview.Variants[0].VariantID)
	suite.Equal(4, preview.Variants[0].CommittedElsewhere)
}

func (suite *APITestSuite) TestSyncInsufficientInventory() {
	product := suite.createProduct(3)
	store := suite.createStore("main.myshopify.com")

	w, response := suite.request(http.MethodPost, "/v1/products/"+product.ID+"/sync", map[string]interface{}{
		"targets": []map[string]interface{}{
			{"store_id": store, "assigned_inventory": map[string]int{product.Variants[0].ID: 7}},
		},
	})
	suite.Equal(http.StatusConflict, w.Code, w.Body.String())
	suite.Equal("INSUFFICIENT_INVENTORY", response.Error.Code)
	suite.Contains(response.Error.Message, "requested 7, available 3")

	suite.adapter.mu.Lock()
	defer suite.adapter.mu.Unlock()
	suite.Zero(suite.adapter.pushes)
}

func (suite *APITestSuite) TestSyncRequiresTargets() {
	product := suite.createProduct(3)

	w, response := suite.request(http.MethodPost, "/v1/products/"+product.ID+"/sync", map[string]interface{}{
		"targets": []map[string]interface{}{},
	})
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("VALIDATION_ERROR", response.Error.Code)
}

func (suite *APITestSuite) TestCancelWithoutRunningSync() {
	product := suite.createProduct(3)

	w, response := suite.request(http.MethodPost, "/v1/products/"+product.ID+"/sync/cancel", nil)
	suite.Equal(http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Cancelled int `json:"cancelled"`
	}
	suite.decode(response.Data, &data)
	suite.Zero(data.Cancelled)
}

func (suite *APITestSuite) TestMessagesFollowAcceptLanguage() {
	w, response := suite.request(http.MethodPost, "/v1/products", map[string]interface{}{"title": "Mug", "generate_variants": true}, "Accept-Language", "zh-TW,zh;q=0.9")
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var data struct {
		Message string `json:"message"`
	}
	suite.decode(response.Data, &data)
	suite.Equal(i18n.T("zh_TW", i18n.KeyProductCreated), data.Message)
	suite.NotEqual(i18n.T("en", i18n.KeyProductCreated), data.Message)
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
