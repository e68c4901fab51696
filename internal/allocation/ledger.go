// internal/allocation/ledger.go
package allocation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/javajoker/multistore-backend/internal/models"
	"github.com/javajoker/multistore-backend/internal/repository"
)

// Locker hands out exclusive locks by key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is a keyed mutex for a single process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-kl.ch
				l.release(key, kl)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// Key addresses one variant's commitment to one store.
type Key struct {
	ProductID uuid.UUID
	VariantID uuid.UUID
	StoreID   uuid.UUID
}

func lockKey(productID, variantID uuid.UUID) string {
	return "ledger:" + productID.String() + ":" + variantID.String()
}

// Ledger tracks how much of each variant's master quantity is promised to
// each store. Reads and writes for one variant are serialised through the
// Locker so concurrent syncs cannot over-commit.
type Ledger struct {
	commitments repository.CommitmentRepository
	locker      Locker
}

func NewLedger(commitments repository.CommitmentRepository, locker Locker) *Ledger {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Ledger{commitments: commitments, locker: locker}
}

// Commit passes the quantity committed to other stores to fn and records the
// allocation it returns as this store's commitment, owned by attemptID. The
// row it replaces is kept on the new one for Restore.
func (l *Ledger) Commit(ctx context.Context, key Key, attemptID uuid.UUID, fn func(committedElsewhere int) (*Allocation, error)) (*Allocation, error) {
	unlock, err := l.locker.Lock(ctx, lockKey(key.ProductID, key.VariantID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock ledger: %w", err)
	}
	defer unlock()

	elsewhere, own, err := l.read(ctx, key)
	if err != nil {
		return nil, err
	}

	alloc, err := fn(elsewhere)
	if err != nil {
		return nil, err
	}

	commitment := &models.InventoryCommitment{
		ProductID: key.ProductID,
		VariantID: key.VariantID,
		StoreID:   key.StoreID,
		Quantity:  alloc.Total(),
		Locations: alloc.Quantities.Clone(),
		AttemptID: attemptID,
	}
	if own != nil {
		commitment.Previous = own.Snapshot()
	}
	if err := l.commitments.Save(ctx, commitment); err != nil {
		return nil, err
	}
	return alloc, nil
}

// Restore puts back the row attemptID's commitment replaced. It does nothing
// and returns false once another attempt owns the row.
func (l *Ledger) Restore(ctx context.Context, key Key, attemptID uuid.UUID) (bool, error) {
	unlock, err := l.locker.Lock(ctx, lockKey(key.ProductID, key.VariantID))
	if err != nil {
		return false, fmt.Errorf("failed to lock ledger: %w", err)
	}
	defer unlock()

	_, own, err := l.read(ctx, key)
	if err != nil {
		return false, err
	}
	if own == nil || own.AttemptID != attemptID {
		return false, nil
	}

	if own.Previous == nil {
		return true, l.commitments.Delete(ctx, key.ProductID, key.VariantID, key.StoreID)
	}
	return true, l.commitments.Save(ctx, &models.InventoryCommitment{
		ProductID: key.ProductID,
		VariantID: key.VariantID,
		StoreID:   key.StoreID,
		Quantity:  own.Previous.Quantity,
		Locations: own.Previous.Locations.Clone(),
		AttemptID: own.Previous.AttemptID,
	})
}

// RestoreAttempt restores every commitment attemptID still owns for the
// product in one store and returns how many rows it put back.
func (l *Ledger) RestoreAttempt(ctx context.Context, productID, storeID, attemptID uuid.UUID) (int, error) {
	commitments, err := l.commitments.ListByProduct(ctx, productID)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, c := range commitments {
		if c.StoreID != storeID || c.AttemptID != attemptID {
			continue
		}
		ok, err := l.Restore(ctx, Key{ProductID: productID, VariantID: c.VariantID, StoreID: storeID}, attemptID)
		if err != nil {
			return restored, err
		}
		if ok {
			restored++
		}
	}
	return restored, nil
}

// WithVariantLocks runs fn while holding the ledger locks of every listed
// variant, so no commitment for them can land until fn returns. Locks are
// taken in id order.
func (l *Ledger) WithVariantLocks(ctx context.Context, productID uuid.UUID, variantIDs []uuid.UUID, fn func() error) error {
	ids := append([]uuid.UUID(nil), variantIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var last uuid.UUID
	for i, id := range ids {
		if i > 0 && id == last {
			continue
		}
		last = id

		unlock, err := l.locker.Lock(ctx, lockKey(productID, id))
		if err != nil {
			return fmt.Errorf("failed to lock ledger: %w", err)
		}
		defer unlock()
	}
	return fn()
}

// Committed is the total promised to every store for one variant. Callers
// that act on it hold the variant's lock through WithVariantLocks.
func (l *Ledger) Committed(ctx context.Context, productID, variantID uuid.UUID) (int, error) {
	existing, err := l.commitments.ListByVariant(ctx, productID, variantID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, c := range existing {
		total += c.Quantity
	}
	return total, nil
}

// CommittedElsewhere is the unlocked read used by previews.
func (l *Ledger) CommittedElsewhere(ctx context.Context, key Key) (int, error) {
	elsewhere, _, err := l.read(ctx, key)
	return elsewhere, err
}

// Release drops every store's commitment for a variant.
func (l *Ledger) Release(ctx context.Context, productID, variantID uuid.UUID) error {
	unlock, err := l.locker.Lock(ctx, lockKey(productID, variantID))
	if err != nil {
		return fmt.Errorf("failed to lock ledger: %w", err)
	}
	defer unlock()

	return l.commitments.DeleteByVariant(ctx, productID, variantID)
}

func (l *Ledger) read(ctx context.Context, key Key) (int, *models.InventoryCommitment, error) {
	existing, err := l.commitments.ListByVariant(ctx, key.ProductID, key.VariantID)
	if err != nil {
		return 0, nil, err
	}

	elsewhere := 0
	var own *models.InventoryCommitment
	for i := range existing {
		if existing[i].StoreID == key.StoreID {
			own = &existing[i]
			continue
		}
		elsewhere += existing[i].Quantity
	}
	return elsewhere, own, nil
}
