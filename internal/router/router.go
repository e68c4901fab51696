// internal/router/router.go
package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/javajoker/multistore-backend/internal/config"
	"github.com/javajoker/multistore-backend/internal/handlers"
	"github.com/javajoker/multistore-backend/internal/middleware"
	"github.com/javajoker/multistore-backend/internal/services"
)

const version = "1.0.0"

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	Products     *services.ProductService
	Stores       *services.StoreService
	Sync         *services.SyncService
	Tracker      *services.SyncTracker
	Storage      *services.StorageService
	HealthChecks map[string]handlers.HealthCheck
}

func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Accept-Language", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "X-Total-Count", "X-Page", "X-Per-Page"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
		return corsCfg
	}
	for _, origin := range cfg.CORS.AllowedOrigins {
		if origin == "*" {
			corsCfg.AllowAllOrigins = true
			corsCfg.AllowCredentials = false
			return corsCfg
		}
	}
	corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	return corsCfg
}

func Initialize(cfg *config.Config, deps Dependencies) *gin.Engine {
	// Initialize handlers
	productHandler := handlers.NewProductHandler(deps.Products, deps.Storage)
	storeHandler := handlers.NewStoreHandler(deps.Stores)
	syncHandler := handlers.NewSyncHandler(deps.Products, deps.Sync, deps.Tracker, cfg.Sync.PollInterval)
	healthHandler := handlers.NewHealthHandler(version, deps.HealthChecks)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(cors.New(corsConfig(cfg)))
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.GeneralRateLimit())

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Product routes
		products := v1.Group("/products")
		{
			products.GET("", productHandler.GetProducts)
			products.POST("", productHandler.CreateProduct)
			products.GET("/:id", productHandler.GetProduct)
			products.PUT("/:id", productHandler.UpdateProduct)
			products.DELETE("/:id", productHandler.DeleteProduct)
			products.PATCH("/:id/variants/:variantId", productHandler.PatchVariant)
			products.DELETE("/:id/variants/:variantId", productHandler.DeleteVariant)

			// Allocation and sync
			products.POST("/:id/allocation/preview", syncHandler.PreviewAllocation)
			products.POST("/:id/sync", middleware.SyncRateLimit(), syncHandler.StartSync)
			products.GET("/:id/sync-status", syncHandler.GetSyncStatus)
			products.POST("/:id/sync/cancel", syncHandler.CancelSync)
		}

		v1.POST("/variants/preview", productHandler.PreviewVariants)
		v1.POST("/media", middleware.UploadRateLimit(), productHandler.UploadMedia)

		// Store routes
		stores := v1.Group("/stores")
		{
			stores.GET("", storeHandler.GetStores)
			stores.POST("", storeHandler.CreateStore)
			stores.GET("/:id", storeHandler.GetStore)
			stores.PUT("/:id", storeHandler.UpdateStore)
			stores.DELETE("/:id", storeHandler.DeleteStore)
			stores.POST("/:id/locations/refresh", storeHandler.RefreshLocations)
			stores.PUT("/:id/locations/:locationId", storeHandler.UpdateLocation)
		}
	}

	// Static file serving (for development)
	if cfg.Environment == "development" {
		r.Static("/uploads", "./uploads")
	}

	return r
}
