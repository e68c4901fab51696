package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/multistore-backend/internal/apperrors"
	"github.com/javajoker/multistore-backend/internal/models"
	"github.com/javajoker/multistore-backend/internal/repository/memory"
)

var (
	t1 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Minute)
	t3 = t2.Add(time.Minute)
)

func newTracker() *SyncTracker {
	return NewSyncTracker(memory.NewSyncResultRepository())
}

func result(productID, storeID, attemptID uuid.UUID, status models.SyncStatus, at time.Time) models.SyncResult {
	return models.SyncResult{
		ProductID: productID,
		StoreID:   storeID,
		AttemptID: attemptID,
		Status:    status,
		Timestamp: at,
	}
}

func TestRecordRejectsOlderWriteOverCompleted(t *testing.T) {
	ctx := context.Background()
	tracker := newTracker()
	productID, storeID, attempt := uuid.New(), uuid.New(), uuid.New()

	completed := result(productID, storeID, attempt, models.SyncStatusCompleted, t2)
	completed.ShopifyProductID = "gid://shopify/Product/1"
	_, err := tracker.Record(ctx, completed)
	require.NoError(t, err)

	_, err = tracker.Record(ctx, result(productID, storeID, attempt, models.SyncStatusSyncing, t1))
	var stale *apperrors.StaleWriteError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, productID, stale.ProductID)
	assert.Equal(t, storeID, stale.StoreID)

	stored, err := tracker.Latest(ctx, productID, storeID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompleted, stored.Status)
	assert.Equal(t, t2, stored.Timestamp)
	assert.Equal(t, "gid://shopify/Product/1", stored.ShopifyProductID)
}

func TestRecordTransitions(t *testing.T) {
	productID, storeID := uuid.New(), uuid.New()
	first, second := uuid.New(), uuid.New()

	tests := []struct {
		name     string
		existing models.SyncResult
		incoming models.SyncResult
		stale    bool
	}{
		{
			name:     "forward within attempt",
			existing: result(productID, storeID, first, models.SyncStatusPending, t1),
			incoming: result(productID, storeID, first, models.SyncStatusSyncing, t1),
		},
		{
			name:     "backwards within attempt",
			existing: result(productID, storeID, first, models.SyncStatusSyncing, t1),
			incoming: result(productID, storeID, first, models.SyncStatusPending, t2),
			stale:    true,
		},
		{
			name:     "pending over terminal at the same time",
			existing: result(productID, storeID, first, models.SyncStatusFailed, t2),
			incoming: result(productID, storeID, second, models.SyncStatusPending, t2),
			stale:    true,
		},
		{
			name:     "new attempt after terminal",
			existing: result(productID, storeID, first, models.SyncStatusCompleted, t1),
			incoming: result(productID, storeID, second, models.SyncStatusPending, t2),
		},
		{
			name:     "late result of a settled attempt",
			existing: result(productID, storeID, first, models.SyncStatusFailed, t1),
			incoming: result(productID, storeID, first, models.SyncStatusCompleted, t2),
			stale:    true,
		},
		{
			name:     "old attempt over a newer one",
			existing: result(productID, storeID, second, models.SyncStatusPending, t2),
			incoming: result(productID, storeID, first, models.SyncStatusCompleted, t3),
			stale:    true,
		},
		{
			name:     "cancel of an in-flight attempt",
			existing: result(productID, storeID, first, models.SyncStatusSyncing, t1),
			incoming: result(productID, storeID, first, models.SyncStatusFailed, t2),
		},
		{
			name:     "unattributed terminal write",
			existing: result(productID, storeID, first, models.SyncStatusCompleted, t1),
			incoming: result(productID, storeID, uuid.Nil, models.SyncStatusFailed, t2),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tracker := newTracker()

			_, err := tracker.Record(ctx, tt.existing)
			require.NoError(t, err)

			_, err = tracker.Record(ctx, tt.incoming)
			stored, getErr := tracker.Latest(ctx, productID, storeID)
			require.NoError(t, getErr)

			if tt.stale {
				assert.True(t, apperrors.IsStaleWrite(err), "expected stale write, got %v", err)
				assert.Equal(t, tt.existing.Status, stored.Status)
				assert.Equal(t, tt.existing.AttemptID, stored.AttemptID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.incoming.Status, stored.Status)
		})
	}
}

func TestRecordStampsAheadOfStoredRecord(t *testing.T) {
	ctx := context.Background()
	tracker := newTracker()
	tracker.now = func() time.Time { return t1 }
	productID, storeID := uuid.New(), uuid.New()

	_, err := tracker.Record(ctx, result(productID, storeID, uuid.New(), models.SyncStatusCompleted, t2))
	require.NoError(t, err)

	// The clock lags the stored record; a new attempt still gets in.
	saved, err := tracker.Record(ctx, result(productID, storeID, uuid.New(), models.SyncStatusPending, time.Time{}))
	require.NoError(t, err)
	assert.True(t, saved.Timestamp.After(t2))
}

func TestRecordKeepsShopifyProductID(t *testing.T) {
	ctx := context.Background()
	tracker := newTracker()
	productID, storeID := uuid.New(), uuid.New()

	completed := result(productID, storeID, uuid.New(), models.SyncStatusCompleted, t1)
	completed.ShopifyProductID = "gid://shopify/Product/7"
	_, err := tracker.Record(ctx, completed)
	require.NoError(t, err)

	saved, err := tracker.Record(ctx, result(productID, storeID, uuid.New(), models.SyncStatusPending, t2))
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Product/7", saved.ShopifyProductID)
}

func TestRecordValidatesInput(t *testing.T) {
	tracker := newTracker()

	_, err := tracker.Record(context.Background(), models.SyncResult{Status: models.SyncStatusPending})
	assert.True(t, apperrors.IsValidation(err))

	_, err = tracker.Record(context.Background(), result(uuid.New(), uuid.New(), uuid.New(), "unknown", t1))
	assert.True(t, apperrors.IsValidation(err))
}

func TestIsSettled(t *testing.T) {
	assert.True(t, IsSettled(nil))
	assert.True(t, IsSettled([]models.SyncResult{{Status: models.SyncStatusCompleted}, {Status: models.SyncStatusFailed}}))
	assert.False(t, IsSettled([]models.SyncResult{{Status: models.SyncStatusCompleted}, {Status: models.SyncStatusSyncing}}))
}

func TestWaitForTerminal(t *testing.T) {
	ctx := context.Background()
	tracker := newTracker()
	productID, storeID, attempt := uuid.New(), uuid.New(), uuid.New()

	_, err := tracker.Record(ctx, result(productID, storeID, attempt, models.SyncStatusSyncing, t1))
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_, _ = tracker.Record(ctx, result(productID, storeID, attempt, models.SyncStatusCompleted, t2))
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	results, err := tracker.WaitForTerminal(waitCtx, productID, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.SyncStatusCompleted, results[0].Status)
}

func TestWaitForTerminalStopsWithContext(t *testing.T) {
	ctx := context.Background()
	tracker := newTracker()
	productID := uuid.New()

	_, err := tracker.Record(ctx, result(productID, uuid.New(), uuid.New(), models.SyncStatusPending, t1))
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()

	results, err := tracker.WaitForTerminal(waitCtx, productID, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, results, 1)
}
