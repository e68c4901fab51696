package allocation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/multistore-backend/internal/apperrors"
	"github.com/javajoker/multistore-backend/internal/models"
	"github.com/javajoker/multistore-backend/internal/repository/memory"
)

func allocator(master int, requested *int, locations []models.Location) func(int) (*Allocation, error) {
	return func(committed int) (*Allocation, error) {
		return Allocate(Request{MasterQuantity: master, Committed: committed, Requested: requested, Locations: locations})
	}
}

func TestLedgerConcurrentCommitsNeverOvercommit(t *testing.T) {
	ctx := context.Background()
	commitments := memory.NewCommitmentRepository()
	ledger := NewLedger(commitments, NewLocalLocker())

	productID, variantID := uuid.New(), uuid.New()
	locations := []models.Location{location(idA, 1, nil)}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, insufficient := 0, 0
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := Key{ProductID: productID, VariantID: variantID, StoreID: uuid.New()}
			_, err := ledger.Commit(ctx, key, uuid.New(), allocator(100, intPtr(10), locations))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperrors.IsInsufficientInventory(err):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 5, insufficient)

	total, err := ledger.Committed(ctx, productID, variantID)
	require.NoError(t, err)
	assert.Equal(t, 100, total)
}

func TestLedgerRecommitReplacesOwnShare(t *testing.T) {
	ctx := context.Background()
	commitments := memory.NewCommitmentRepository()
	ledger := NewLedger(commitments, nil)
	key := Key{ProductID: uuid.New(), VariantID: uuid.New(), StoreID: uuid.New()}
	locations := []models.Location{location(idA, 1, nil)}
	first, second := uuid.New(), uuid.New()

	alloc, err := ledger.Commit(ctx, key, first, allocator(20, intPtr(15), locations))
	require.NoError(t, err)
	assert.Equal(t, 15, alloc.Total())

	alloc, err = ledger.Commit(ctx, key, second, allocator(20, intPtr(18), locations))
	require.NoError(t, err)
	assert.Equal(t, 18, alloc.Total())

	stored, err := commitments.ListByVariant(ctx, key.ProductID, key.VariantID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, second, stored[0].AttemptID)
	require.NotNil(t, stored[0].Previous)
	assert.Equal(t, first, stored[0].Previous.AttemptID)
	assert.Equal(t, 15, stored[0].Previous.Quantity)

	other := key
	other.StoreID = uuid.New()
	elsewhere, err := ledger.CommittedElsewhere(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 18, elsewhere)
}

func TestLedgerRestore(t *testing.T) {
	ctx := context.Background()
	commitments := memory.NewCommitmentRepository()
	ledger := NewLedger(commitments, nil)
	key := Key{ProductID: uuid.New(), VariantID: uuid.New(), StoreID: uuid.New()}
	locations := []models.Location{location(idA, 1, nil)}

	attempt := uuid.New()
	_, err := ledger.Commit(ctx, key, attempt, allocator(10, intPtr(4), locations))
	require.NoError(t, err)
	restored, err := ledger.Restore(ctx, key, attempt)
	require.NoError(t, err)
	assert.True(t, restored)

	total, err := ledger.Committed(ctx, key.ProductID, key.VariantID)
	require.NoError(t, err)
	assert.Zero(t, total)

	first, second := uuid.New(), uuid.New()
	_, err = ledger.Commit(ctx, key, first, allocator(10, intPtr(4), locations))
	require.NoError(t, err)
	_, err = ledger.Commit(ctx, key, second, allocator(10, intPtr(7), locations))
	require.NoError(t, err)
	restored, err = ledger.Restore(ctx, key, second)
	require.NoError(t, err)
	assert.True(t, restored)

	stored, err := commitments.ListByVariant(ctx, key.ProductID, key.VariantID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 4, stored[0].Quantity)
	assert.Equal(t, first, stored[0].AttemptID)
	assert.Nil(t, stored[0].Previous)
}

func TestLedgerRestoreLeavesNewerAttemptAlone(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.NewCommitmentRepository(), nil)
	key := Key{ProductID: uuid.New(), VariantID: uuid.New(), StoreID: uuid.New()}
	locations := []models.Location{location(idA, 1, nil)}
	older, newer := uuid.New(), uuid.New()

	_, err := ledger.Commit(ctx, key, older, allocator(100, intPtr(40), locations))
	require.NoError(t, err)
	_, err = ledger.Commit(ctx, key, newer, allocator(100, intPtr(60), locations))
	require.NoError(t, err)

	restored, err := ledger.Restore(ctx, key, older)
	require.NoError(t, err)
	assert.False(t, restored)

	total, err := ledger.Committed(ctx, key.ProductID, key.VariantID)
	require.NoError(t, err)
	assert.Equal(t, 60, total)

	other := key
	other.StoreID = uuid.New()
	_, err = ledger.Commit(ctx, other, uuid.New(), allocator(100, intPtr(100), locations))
	assert.True(t, apperrors.IsInsufficientInventory(err))
}

func TestLedgerRestoreAttempt(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.NewCommitmentRepository(), nil)
	productID, storeID := uuid.New(), uuid.New()
	locations := []models.Location{location(idA, 1, nil)}
	attempt := uuid.New()

	variants := []uuid.UUID{uuid.New(), uuid.New()}
	for _, variantID := range variants {
		_, err := ledger.Commit(ctx, Key{ProductID: productID, VariantID: variantID, StoreID: storeID}, attempt, allocator(10, intPtr(3), locations))
		require.NoError(t, err)
	}
	otherStore := Key{ProductID: productID, VariantID: variants[0], StoreID: uuid.New()}
	_, err := ledger.Commit(ctx, otherStore, attempt, allocator(10, intPtr(2), locations))
	require.NoError(t, err)

	restored, err := ledger.RestoreAttempt(ctx, productID, storeID, attempt)
	require.NoError(t, err)
	assert.Equal(t, 2, restored)

	total, err := ledger.Committed(ctx, productID, variants[0])
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	total, err = ledger.Committed(ctx, productID, variants[1])
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestLedgerWithVariantLocksHoldsOffCommits(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.NewCommitmentRepository(), NewLocalLocker())
	key := Key{ProductID: uuid.New(), VariantID: uuid.New(), StoreID: uuid.New()}
	locations := []models.Location{location(idA, 1, nil)}

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- ledger.WithVariantLocks(ctx, key.ProductID, []uuid.UUID{key.VariantID, key.VariantID}, func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := ledger.Commit(blocked, key, uuid.New(), allocator(10, intPtr(1), locations))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)

	_, err = ledger.Commit(ctx, key, uuid.New(), allocator(10, intPtr(1), locations))
	assert.NoError(t, err)
}

func TestLedgerFailedAllocationLeavesNoCommitment(t *testing.T) {
	ctx := context.Background()
	commitments := memory.NewCommitmentRepository()
	ledger := NewLedger(commitments, nil)
	key := Key{ProductID: uuid.New(), VariantID: uuid.New(), StoreID: uuid.New()}

	_, err := ledger.Commit(ctx, key, uuid.New(), allocator(5, intPtr(6), []models.Location{location(idA, 1, nil)}))
	require.True(t, apperrors.IsInsufficientInventory(err))

	stored, err := commitments.ListByVariant(ctx, key.ProductID, key.VariantID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestLocalLockerHonoursContext(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	again, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
	assert.Empty(t, locker.locks)
}
