// cmd/sync-product/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/multistore-backend/internal/allocation"
	"github.com/javajoker/multistore-backend/internal/cache"
	"github.com/javajoker/multistore-backend/internal/config"
	"github.com/javajoker/multistore-backend/internal/database"
	"github.com/javajoker/multistore-backend/internal/models"
	"github.com/javajoker/multistore-backend/internal/repository"
	"github.com/javajoker/multistore-backend/internal/repository/postgres"
	"github.com/javajoker/multistore-backend/internal/services"
	"github.com/javajoker/multistore-backend/internal/shopify"
	"github.com/javajoker/multistore-backend/internal/utils"
)

func main() {
	productFlag := flag.String("product", "", "Product ID to sync")
	storesFlag := flag.String("stores", "", "Comma separated store IDs (default: every active store)")
	forceFlag := flag.Bool("force", false, "Push even when a store already holds the current payload")
	strategyFlag := flag.String("strategy", "", "Allocation strategy: balanced, priority, demand-based or geographic")
	timeoutFlag := flag.Duration("timeout", 5*time.Minute, "How long to wait for every store to settle")
	flag.Parse()

	productID, err := uuid.Parse(strings.TrimSpace(*productFlag))
	if err != nil {
		fmt.Println("Usage:")
		fmt.Println("  go run cmd/sync-product/main.go --product <uuid> [--stores <uuid,uuid>] [--force] [--strategy balanced]")
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(logrus.WarnLevel)

	// Connect to database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close(db)
	repos := postgres.NewRepositories(db)

	var locker allocation.Locker = allocation.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		redisClient, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to Redis: %v\n", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		locker = cache.NewRedisLocker(redisClient, cfg.Redis.LockTTL)
	}

	secrets, err := utils.NewSecretBox(cfg.Security.CredentialsKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize credential encryption: %v\n", err)
		os.Exit(1)
	}

	ledger := allocation.NewLedger(repos.Commitments, locker)
	tracker := services.NewSyncTracker(repos.SyncResults)
	syncService := services.NewSyncService(cfg.Sync, repos.Products, repos.Stores, ledger, tracker, shopify.NewClient(cfg.Shopify, nil), secrets)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	product, err := repos.Products.GetByID(ctx, productID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load product: %v\n", err)
		os.Exit(1)
	}

	targets, err := buildTargets(ctx, repos.Stores, *storesFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	batch, err := syncService.Start(ctx, product, targets, services.SyncOptions{ForceSync: *forceFlag, Strategy: *strategyFlag})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sync rejected: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Syncing %q to %d store(s), attempt %s\n", product.Title, len(targets), batch.AttemptID)

	waitCtx, cancel := context.WithTimeout(ctx, *timeoutFlag)
	defer cancel()

	if _, err := tracker.WaitForTerminal(waitCtx, productID, cfg.Sync.PollInterval); err != nil {
		// Interrupted: mark what is still running as failed and release its inventory.
		cancelled, cancelErr := syncService.Cancel(context.Background(), productID)
		if cancelErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to cancel sync: %v\n", cancelErr)
		} else {
			fmt.Fprintf(os.Stderr, "Stopped waiting (%v), cancelled %d store(s)\n", err, cancelled)
		}
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	syncService.Wait(shutdownCtx)

	results, err := tracker.Get(context.Background(), productID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read sync status: %v\n", err)
		os.Exit(1)
	}
	printResults(results)

	if summary := services.Summarize(results); summary.Failed > 0 || summary.Pending+summary.Syncing > 0 {
		os.Exit(2)
	}
}

func buildTargets(ctx context.Context, stores repository.StoreRepository, ids string) ([]services.SyncTarget, error) {
	var targets []services.SyncTarget
	if strings.TrimSpace(ids) == "" {
		active, err := stores.List(ctx, true)
		if err != nil {
			return nil, fmt.Errorf("failed to list stores: %w", err)
		}
		for _, s := range active {
			targets = append(targets, services.SyncTarget{StoreID: s.ID})
		}
	} else {
		for _, raw := range strings.Split(ids, ",") {
			id, err := uuid.Parse(strings.TrimSpace(raw))
			if err != nil {
				return nil, fmt.Errorf("invalid store id %q", raw)
			}
			targets = append(targets, services.SyncTarget{StoreID: id})
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no active stores to sync to")
	}
	return targets, nil
}

func printResults(results []models.SyncResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STORE\tSTATUS\tSHOPIFY ID\tERROR")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.StoreID, r.Status, r.ShopifyProductID, r.Error)
	}
	w.Flush()
	fmt.Println(services.Summarize(results).String())
}
