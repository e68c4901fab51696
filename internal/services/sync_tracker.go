// internal/services/sync_tracker.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/multistore-backend/internal/apperrors"
	"github.com/javajoker/multistore-backend/internal/models"
	"github.com/javajoker/multistore-backend/internal/repository"
)

// SyncTracker keeps the latest sync result per (product, store) and refuses
// writes that would move a record backwards.
type SyncTracker struct {
	results repository.SyncResultRepository
	now     func() time.Time
}

func NewSyncTracker(results repository.SyncResultRepository) *SyncTracker {
	return &SyncTracker{
		results: results,
		now:     time.Now,
	}
}

// Record upserts result by (ProductID, StoreID). A zero Timestamp is set to
// the current time. Rejected writes return *apperrors.StaleWriteError and
// leave the stored record unchanged.
func (t *SyncTracker) Record(ctx context.Context, result models.SyncResult) (*models.SyncResult, error) {
	if result.ProductID == uuid.Nil || result.StoreID == uuid.Nil {
		return nil, apperrors.NewValidationError("sync result needs a product and a store")
	}
	if result.Status.Rank() < 0 {
		return nil, apperrors.NewValidationError("unknown sync status %q", result.Status)
	}
	stamped := result.Timestamp.IsZero()
	if stamped {
		result.Timestamp = t.now().UTC().Truncate(time.Microsecond)
	}

	saved, err := t.results.Upsert(ctx, result.ProductID, result.StoreID, func(existing *models.SyncResult) (*models.SyncResult, error) {
		// Writes stamped here must sort after the stored record.
		if stamped && existing != nil && !result.Timestamp.After(existing.Timestamp) {
			result.Timestamp = existing.Timestamp.Add(time.Microsecond)
		}
		if err := checkTransition(existing, &result); err != nil {
			return nil, err
		}
		next := result
		if next.Status == models.SyncStatusCompleted {
			next.Error = ""
		}
		if next.ShopifyProductID == "" && existing != nil {
			next.ShopifyProductID = existing.ShopifyProductID
		}
		return &next, nil
	})
	if err != nil {
		if apperrors.IsStaleWrite(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record sync result: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"product_id": saved.ProductID,
		"store_id":   saved.StoreID,
		"attempt_id": saved.AttemptID,
		"status":     saved.Status,
	}).Debug("Sync result recorded")

	return saved, nil
}

// checkTransition enforces the ordering rules for one (product, store) record:
//   - an older timestamp never replaces a newer one
//   - a terminal record is only replaced by a strictly newer write or another terminal one
//   - a terminal record is final for its attempt
//   - within one attempt the status never moves back
//   - another attempt can only take over the record with a pending write
func checkTransition(existing, incoming *models.SyncResult) error {
	if existing == nil {
		return nil
	}

	stale := func() error {
		return &apperrors.StaleWriteError{
			ProductID: incoming.ProductID,
			StoreID:   incoming.StoreID,
			Existing:  describe(existing),
			Incoming:  describe(incoming),
		}
	}

	if incoming.Timestamp.Before(existing.Timestamp) {
		return stale()
	}
	if existing.Status.IsTerminal() && !incoming.Status.IsTerminal() && !incoming.Timestamp.After(existing.Timestamp) {
		return stale()
	}

	if incoming.AttemptID == uuid.Nil || existing.AttemptID == uuid.Nil {
		return nil
	}
	if incoming.AttemptID == existing.AttemptID {
		if existing.Status.IsTerminal() {
			return stale()
		}
		if incoming.Status.Rank() < existing.Status.Rank() {
			return stale()
		}
		return nil
	}
	if incoming.Status != models.SyncStatusPending {
		return stale()
	}
	return nil
}

func describe(r *models.SyncResult) string {
	return fmt.Sprintf("%s@%s", r.Status, r.Timestamp.Format(time.RFC3339Nano))
}

// Get returns every recorded result for the product.
func (t *SyncTracker) Get(ctx context.Context, productID uuid.UUID) ([]models.SyncResult, error) {
	results, err := t.results.ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync results: %w", err)
	}
	return results, nil
}

// Unsettled returns every pending or syncing result across all products,
// oldest first.
func (t *SyncTracker) Unsettled(ctx context.Context) ([]models.SyncResult, error) {
	results, err := t.results.ListByStatus(ctx, models.SyncStatusPending, models.SyncStatusSyncing)
	if err != nil {
		return nil, fmt.Errorf("failed to load unsettled sync results: %w", err)
	}
	return results, nil
}

// Latest returns the stored result for one store, or nil when the product was
// never synced there.
func (t *SyncTracker) Latest(ctx context.Context, productID, storeID uuid.UUID) (*models.SyncResult, error) {
	result, err := t.results.Get(ctx, productID, storeID)
	if err != nil {
		var notFound *apperrors.NotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load sync result: %w", err)
	}
	return result, nil
}

// IsSettled reports whether polling can stop.
func IsSettled(results []models.SyncResult) bool {
	for _, r := range results {
		if !r.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// WaitForTerminal polls until every result for the product is terminal or
// ctx is done.
func (t *SyncTracker) WaitForTerminal(ctx context.Context, productID uuid.UUID, interval time.Duration) ([]models.SyncResult, error) {
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		results, err := t.Get(ctx, productID)
		if err != nil {
			return nil, err
		}
		if IsSettled(results) {
			return results, nil
		}

		select {
		case <-ctx.Done():
			return results, ctx.Err()
		case <-ticker.C:
		}
	}
}
