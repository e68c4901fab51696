package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newTestEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("lang"))
	})
	return r
}

func serve(r *gin.Engine, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterIsPerClient(t *testing.T) {
	limiter := NewRateLimiter(rate.Every(time.Hour), 2)
	r := newTestEngine(limiter.Middleware())

	assert.Equal(t, http.StatusOK, serve(r, "10.0.0.1:1000", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, "10.0.0.1:1001", nil).Code)

	w := serve(r, "10.0.0.1:1002", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, serve(r, "10.0.0.2:1000", nil).Code)
}

func TestI18nMiddleware(t *testing.T) {
	r := newTestEngine(I18nMiddleware())

	tests := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"zh-TW,zh;q=0.9,en;q=0.8", "zh_TW"},
		{"zh", "zh_TW"},
		{"en-GB", "en"},
		{"fr-FR", "en"},
	}

	for _, tt := range tests {
		w := serve(r, "10.0.0.1:1000", map[string]string{"Accept-Language": tt.header})
		assert.Equal(t, tt.want, w.Body.String(), tt.header)
	}
}

func TestRequestIDReusesCallerID(t *testing.T) {
	r := newTestEngine(RequestID(), RequestLogger())

	w := serve(r, "10.0.0.1:1000", map[string]string{"X-Request-ID": "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	w = serve(r, "10.0.0.1:1000", nil)
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
}

func TestExtractResource(t *testing.T) {
	path := "/v1/products/4f7c8f36-8a51-4f5e-9d0f-0a4f3f1e2b3c/sync"
	assert.Equal(t, "products", extractResourceType(path))
	assert.Equal(t, "4f7c8f36-8a51-4f5e-9d0f-0a4f3f1e2b3c", extractResourceID(path))
	assert.Equal(t, "health", extractResourceType("/health"))
	assert.Empty(t, extractResourceID("/v1/stores"))
}
