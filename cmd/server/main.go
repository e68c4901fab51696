// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/multistore-backend/internal/allocation"
	"github.com/javajoker/multistore-backend/internal/cache"
	"github.com/javajoker/multistore-backend/internal/config"
	"github.com/javajoker/multistore-backend/internal/database"
	"github.com/javajoker/multistore-backend/internal/handlers"
	"github.com/javajoker/multistore-backend/internal/i18n"
	"github.com/javajoker/multistore-backend/internal/repository"
	"github.com/javajoker/multistore-backend/internal/repository/memory"
	"github.com/javajoker/multistore-backend/internal/repository/postgres"
	"github.com/javajoker/multistore-backend/internal/router"
	"github.com/javajoker/multistore-backend/internal/services"
	"github.com/javajoker/multistore-backend/internal/shopify"
	"github.com/javajoker/multistore-backend/internal/utils"
)

func setupLogging(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.Environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	setupLogging(cfg)

	// Initialize i18n
	if err := i18n.Initialize(); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize i18n")
	}

	checks := map[string]handlers.HealthCheck{}

	// Initialize storage
	var repos *repository.Repositories
	switch cfg.Storage.Driver {
	case "memory":
		logrus.Warn("Using in-memory storage; data is lost on restart")
		repos = memory.NewRepositories()
	default:
		db, err := database.Initialize(cfg.Database)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to initialize database")
		}
		defer database.Close(db)

		if err := database.RunMigrations(db); err != nil {
			logrus.WithError(err).Fatal("Failed to run migrations")
		}
		repos = postgres.NewRepositories(db)
		checks["database"] = pingDatabase(db)
	}

	// Ledger locks are shared through Redis when it is configured
	var locker allocation.Locker = allocation.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		redisClient, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisClient.Close()
		locker = cache.NewRedisLocker(redisClient, cfg.Redis.LockTTL)
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.GetClient().Ping(ctx).Err()
		}
	}

	secrets, err := utils.NewSecretBox(cfg.Security.CredentialsKey)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize credential encryption")
	}

	storageService, err := services.NewStorageService(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize storage")
	}

	// Initialize services
	adapter := shopify.NewClient(cfg.Shopify, nil)
	ledger := allocation.NewLedger(repos.Commitments, locker)
	tracker := services.NewSyncTracker(repos.SyncResults)
	syncService := services.NewSyncService(cfg.Sync, repos.Products, repos.Stores, ledger, tracker, adapter, secrets)

	// Fail syncs a previous run left unfinished so pollers can settle
	recoverCtx, cancelRecover := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := syncService.Recover(recoverCtx); err != nil {
		logrus.WithError(err).Error("Failed to recover interrupted syncs")
	}
	cancelRecover()

	deps := router.Dependencies{
		Products:     services.NewProductService(repos, ledger),
		Stores:       services.NewStoreService(repos.Stores, adapter, secrets, cfg.Shopify.APIVersion),
		Sync:         syncService,
		Tracker:      tracker,
		Storage:      storageService,
		HealthChecks: checks,
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	r := router.Initialize(cfg, deps)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown server
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}

	// Let in-flight syncs record their results
	if err := syncService.Wait(ctx); err != nil {
		logrus.WithError(err).Warn("Background syncs did not finish before shutdown")
	}

	logrus.Info("Server exited")
}

func pingDatabase(db *gorm.DB) handlers.HealthCheck {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
