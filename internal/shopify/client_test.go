package shopify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/multistore-backend/internal/config"
)

type recordedRequest struct {
	Query     string
	Variables map[string]any
	Token     string
	Path      string
}

func newTestClient(t *testing.T, handler func(req recordedRequest) (int, any)) (*Client, Credentials, *[]recordedRequest) {
	t.Helper()

	var recorded []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		req := recordedRequest{
			Query:     body.Query,
			Variables: body.Variables,
			Token:     r.Header.Get("X-Shopify-Access-Token"),
			Path:      r.URL.Path,
		}
		recorded = append(recorded, req)

		status, resp := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)

	client := NewClient(config.ShopifyConfig{APIVersion: "2024-10", MaxRetries: 2}, server.Client())
	client.backoff = func(int) time.Duration { return time.Millisecond }

	creds := Credentials{Domain: server.URL, AccessToken: "shpat_test"}
	return client, creds, &recorded
}

func samplePayload() *ProductPayload {
	return &ProductPayload{
		Title:   "Tee",
		Status:  "ACTIVE",
		Options: []OptionPayload{{Name: "Size", Values: []string{"S", "M"}}},
		Variants: []VariantPayload{
			{
				SKU:          "TEE-S",
				Price:        "19.00",
				OptionValues: []OptionValue{{OptionName: "Size", Name: "S"}},
				Inventory:    []InventoryQuantity{{LocationID: "gid://shopify/Location/1", Quantity: 5}},
			},
			{SKU: "TEE-M", Price: "19.00", OptionValues: []OptionValue{{OptionName: "Size", Name: "M"}}},
		},
	}
}

func TestUpsertProductCreatesWhenUnknown(t *testing.T) {
	client, creds, recorded := newTestClient(t, func(req recordedRequest) (int, any) {
		if strings.Contains(req.Query, "productVariants") {
			return http.StatusOK, map[string]any{"data": map[string]any{"productVariants": map[string]any{"nodes": []any{}}}}
		}
		return http.StatusOK, map[string]any{"data": map[string]any{
			"productSet": map[string]any{"product": map[string]any{"id": "gid://shopify/Product/42"}, "userErrors": []any{}},
		}}
	})

	id, err := client.UpsertProduct(context.Background(), creds, samplePayload())
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Product/42", id)

	require.Len(t, *recorded, 2)
	set := (*recorded)[1]
	assert.Equal(t, "shpat_test", set.Token)
	assert.Equal(t, "/admin/api/2024-10/graphql.json", set.Path)

	input := set.Variables["input"].(map[string]any)
	assert.NotContains(t, input, "id")
	variants := input["variants"].([]any)
	require.Len(t, variants, 2)
	first := variants[0].(map[string]any)
	assert.Equal(t, "19.00", first["price"])
	quantities := first["inventoryQuantities"].([]any)
	assert.Equal(t, float64(5), quantities[0].(map[string]any)["quantity"])
}

func TestUpsertProductReusesExistingBySKU(t *testing.T) {
	client, creds, recorded := newTestClient(t, func(req recordedRequest) (int, any) {
		if strings.Contains(req.Query, "productVariants") {
			return http.StatusOK, map[string]any{"data": map[string]any{"productVariants": map[string]any{"nodes": []any{
				map[string]any{"id": "gid://shopify/ProductVariant/1", "sku": "TEE-S", "product": map[string]any{"id": "gid://shopify/Product/7"}},
			}}}}
		}
		return http.StatusOK, map[string]any{"data": map[string]any{
			"productSet": map[string]any{"product": map[string]any{"id": "gid://shopify/Product/7"}},
		}}
	})

	id, err := client.UpsertProduct(context.Background(), creds, samplePayload())
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Product/7", id)
	input := (*recorded)[1].Variables["input"].(map[string]any)
	assert.Equal(t, "gid://shopify/Product/7", input["id"])
}

func TestUpsertProductWithKnownIDSkipsLookup(t *testing.T) {
	client, creds, recorded := newTestClient(t, func(req recordedRequest) (int, any) {
		return http.StatusOK, map[string]any{"data": map[string]any{
			"productSet": map[string]any{"product": map[string]any{"id": "gid://shopify/Product/9"}},
		}}
	})

	payload := samplePayload()
	payload.ShopifyProductID = "gid://shopify/Product/9"
	_, err := client.UpsertProduct(context.Background(), creds, payload)
	require.NoError(t, err)
	require.Len(t, *recorded, 1)
	assert.Contains(t, (*recorded)[0].Query, "productSet")
}

func TestUpsertProductUserErrors(t *testing.T) {
	client, creds, _ := newTestClient(t, func(req recordedRequest) (int, any) {
		return http.StatusOK, map[string]any{"data": map[string]any{
			"productSet": map[string]any{
				"product":    nil,
				"userErrors": []any{map[string]any{"field": []string{"input", "variants"}, "message": "Price must be positive"}},
			},
		}}
	})

	payload := samplePayload()
	payload.ShopifyProductID = "gid://shopify/Product/1"
	_, err := client.UpsertProduct(context.Background(), creds, payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input.variants: Price must be positive")
}

func TestRetriesThrottledRequests(t *testing.T) {
	var calls int32
	client, creds, _ := newTestClient(t, func(req recordedRequest) (int, any) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			return http.StatusTooManyRequests, map[string]any{"errors": "Too many requests"}
		case 2:
			return http.StatusOK, map[string]any{"errors": []any{map[string]any{"message": "Throttled", "extensions": map[string]any{"code": "THROTTLED"}}}}
		}
		return http.StatusOK, map[string]any{"data": map[string]any{
			"productSet": map[string]any{"product": map[string]any{"id": "gid://shopify/Product/3"}},
		}}
	})

	payload := samplePayload()
	payload.ShopifyProductID = "gid://shopify/Product/3"
	id, err := client.UpsertProduct(context.Background(), creds, payload)
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Product/3", id)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoesNotRetryValidationFailures(t *testing.T) {
	var calls int32
	client, creds, _ := newTestClient(t, func(req recordedRequest) (int, any) {
		atomic.AddInt32(&calls, 1)
		return http.StatusUnprocessableEntity, map[string]any{"errors": "bad input"}
	})

	payload := samplePayload()
	payload.ShopifyProductID = "gid://shopify/Product/3"
	_, err := client.UpsertProduct(context.Background(), creds, payload)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	client, creds, _ := newTestClient(t, func(req recordedRequest) (int, any) {
		atomic.AddInt32(&calls, 1)
		return http.StatusServiceUnavailable, map[string]any{}
	})

	payload := samplePayload()
	payload.ShopifyProductID = "gid://shopify/Product/3"
	_, err := client.UpsertProduct(context.Background(), creds, payload)
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestListLocationsPaginates(t *testing.T) {
	client, creds, recorded := newTestClient(t, func(req recordedRequest) (int, any) {
		if req.Variables["after"] == nil {
			return http.StatusOK, map[string]any{"data": map[string]any{"locations": map[string]any{
				"nodes":    []any{map[string]any{"id": "gid://shopify/Location/1", "name": "Warehouse", "isActive": true, "fulfillsOnlineOrders": true, "shipsInventory": true}},
				"pageInfo": map[string]any{"hasNextPage": true, "endCursor": "c1"},
			}}}
		}
		return http.StatusOK, map[string]any{"data": map[string]any{"locations": map[string]any{
			"nodes":    []any{map[string]any{"id": "gid://shopify/Location/2", "name": "Shop", "isActive": false}},
			"pageInfo": map[string]any{"hasNextPage": false},
		}}}
	})

	locations, err := client.ListLocations(context.Background(), creds)
	require.NoError(t, err)
	require.Len(t, locations, 2)
	assert.Equal(t, "Warehouse", locations[0].Name)
	assert.True(t, locations[0].FulfillsOnlineOrders)
	assert.False(t, locations[1].IsActive)
	assert.Equal(t, "c1", (*recorded)[1].Variables["after"])
}

func TestRetryDelayIsCapped(t *testing.T) {
	assert.Equal(t, retryBaseDelay, retryDelay(0))
	assert.Equal(t, 2*retryBaseDelay, retryDelay(1))
	assert.Equal(t, retryMaxDelay, retryDelay(20))
}
