// internal/services/sync_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/javajoker/multistore-backend/internal/allocation"
	"github.com/javajoker/multistore-backend/internal/apperrors"
	"github.com/javajoker/multistore-backend/internal/config"
	"github.com/javajoker/multistore-backend/internal/models"
	"github.com/javajoker/multistore-backend/internal/repository"
	"github.com/javajoker/multistore-backend/internal/shopify"
	"github.com/javajoker/multistore-backend/internal/utils"
)

const (
	cancelledReason   = "cancelled"
	interruptedReason = "interrupted"
)

// VariantOverride replaces canonical variant fields for one store.
type VariantOverride struct {
	Price          *decimal.Decimal `json:"price,omitempty"`
	CompareAtPrice *decimal.Decimal `json:"compare_at_price,omitempty"`
	SKU            *string          `json:"sku,omitempty"`
}

// SyncTarget is one store a product is pushed to. Overrides and inventory are
// keyed by variant id.
type SyncTarget struct {
	StoreID           uuid.UUID                     `json:"store_id" validate:"required"`
	Overrides         map[uuid.UUID]VariantOverride `json:"overrides,omitempty"`
	AssignedInventory map[uuid.UUID]int             `json:"assigned_inventory,omitempty"`
	CollectionIDs     []string                      `json:"collection_ids,omitempty"`
	// LocationID pins the whole allocation to one location of the store.
	LocationID *uuid.UUID            `json:"location_id,omitempty"`
	Strategy   string                `json:"strategy,omitempty" validate:"allocation_strategy"`
	Weights    map[uuid.UUID]float64 `json:"weights,omitempty"`
}

type SyncOptions struct {
	ForceSync bool   `json:"force_sync"`
	Strategy  string `json:"strategy,omitempty" validate:"allocation_strategy"`
}

// SyncRequest is the body of a sync call.
type SyncRequest struct {
	Targets   []SyncTarget `json:"targets" validate:"required,min=1,dive"`
	ForceSync bool         `json:"force_sync"`
	Strategy  string       `json:"strategy,omitempty" validate:"allocation_strategy"`
}

func (r *SyncRequest) Options() SyncOptions {
	return SyncOptions{ForceSync: r.ForceSync, Strategy: r.Strategy}
}

type SyncSummary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Syncing   int `json:"syncing"`
}

func (s SyncSummary) String() string {
	if s.Pending+s.Syncing > 0 {
		return fmt.Sprintf("%d succeeded, %d failed, %d in progress", s.Completed, s.Failed, s.Pending+s.Syncing)
	}
	return fmt.Sprintf("%d succeeded, %d failed", s.Completed, s.Failed)
}

func Summarize(results []models.SyncResult) SyncSummary {
	summary := SyncSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case models.SyncStatusCompleted:
			summary.Completed++
		case models.SyncStatusFailed:
			summary.Failed++
		case models.SyncStatusPending:
			summary.Pending++
		case models.SyncStatusSyncing:
			summary.Syncing++
		}
	}
	return summary
}

type syncItem struct {
	target      SyncTarget
	store       *models.Store
	creds       shopify.Credentials
	payload     *shopify.ProductPayload
	hash        string
	allocations map[uuid.UUID]*allocation.Allocation
	// committed lists the ledger rows this attempt wrote and still has to
	// give back if the push does not happen.
	committed []allocation.Key
	// skip is set when the store already holds this exact payload.
	skip   bool
	result models.SyncResult
}

// SyncBatch is a prepared sync of one product to a set of stores.
type SyncBatch struct {
	AttemptID uuid.UUID
	ProductID uuid.UUID
	items     []*syncItem
}

// Results returns the batch's results in target order as they stood after
// Prepare: pending, or the prior result for stores that are already current.
func (b *SyncBatch) Results() []models.SyncResult {
	out := make([]models.SyncResult, len(b.items))
	for i, item := range b.items {
		out[i] = item.result
	}
	return out
}

// Allocations returns the committed per-location quantities by store, then variant.
func (b *SyncBatch) Allocations() map[uuid.UUID]map[uuid.UUID]*allocation.Allocation {
	out := make(map[uuid.UUID]map[uuid.UUID]*allocation.Allocation, len(b.items))
	for _, item := range b.items {
		out[item.store.ID] = item.allocations
	}
	return out
}

type SyncService struct {
	products        repository.ProductRepository
	stores          repository.StoreRepository
	ledger          *allocation.Ledger
	tracker         *SyncTracker
	adapter         StoreAdapter
	secrets         *utils.SecretBox
	pushTimeout     time.Duration
	maxConcurrency  int
	defaultStrategy allocation.Strategy
	recoverAfter    time.Duration

	background sync.WaitGroup
}

func NewSyncService(cfg config.SyncConfig, products repository.ProductRepository, stores repository.StoreRepository, ledger *allocation.Ledger, tracker *SyncTracker, adapter StoreAdapter, secrets *utils.SecretBox) *SyncService {
	timeout := cfg.PushTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	strategy, err := allocation.ParseStrategy(cfg.DefaultStrategy)
	if err != nil {
		strategy = allocation.StrategyBalanced
	}
	return &SyncService{
		products:        products,
		stores:          stores,
		ledger:          ledger,
		tracker:         tracker,
		adapter:         adapter,
		secrets:         secrets,
		pushTimeout:     timeout,
		maxConcurrency:  cfg.MaxConcurrency,
		defaultStrategy: strategy,
		recoverAfter:    cfg.RecoverAfter,
	}
}

// Sync prepares and executes a batch, blocking until every store has settled.
func (s *SyncService) Sync(ctx context.Context, product *models.Product, targets []SyncTarget, opts SyncOptions) ([]models.SyncResult, error) {
	batch, err := s.Prepare(ctx, product, targets, opts)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, batch), nil
}

// Start prepares a batch and executes it in the background. The returned
// batch holds the pending results to hand back to pollers.
func (s *SyncService) Start(ctx context.Context, product *models.Product, targets []SyncTarget, opts SyncOptions) (*SyncBatch, error) {
	batch, err := s.Prepare(ctx, product, targets, opts)
	if err != nil {
		return nil, err
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		results := s.Execute(context.WithoutCancel(ctx), batch)
		logrus.WithFields(logrus.Fields{
			"product_id": batch.ProductID,
			"attempt_id": batch.AttemptID,
		}).Info("Sync finished: " + Summarize(results).String())
	}()

	return batch, nil
}

// Wait blocks until background batches finish or ctx is done.
func (s *SyncService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Prepare validates the targets, commits inventory for every (store, variant)
// and records pending results. Nothing is sent to any store; on error every
// commitment made so far is rolled back.
func (s *SyncService) Prepare(ctx context.Context, product *models.Product, targets []SyncTarget, opts SyncOptions) (*SyncBatch, error) {
	if product == nil {
		return nil, apperrors.NewValidationError("product is required")
	}
	if len(targets) == 0 {
		return nil, apperrors.NewValidationError("at least one target store is required")
	}
	if err := utils.ValidateStruct(&opts); err != nil {
		return nil, apperrors.NewValidationError("invalid sync options: %v", err)
	}

	batch := &SyncBatch{
		AttemptID: uuid.New(),
		ProductID: product.ID,
		items:     make([]*syncItem, 0, len(targets)),
	}

	seen := make(map[uuid.UUID]bool, len(targets))
	for _, target := range targets {
		if seen[target.StoreID] {
			return nil, apperrors.NewValidationError("store %s is targeted more than once", target.StoreID)
		}
		seen[target.StoreID] = true

		item, err := s.validateTarget(ctx, product, target)
		if err != nil {
			return nil, err
		}
		batch.items = append(batch.items, item)
	}

	for _, item := range batch.items {
		if err := s.commit(ctx, batch, product, item, opts); err != nil {
			s.rollback(ctx, batch)
			return nil, err
		}
	}

	for _, item := range batch.items {
		if err := s.plan(ctx, batch, product, item, opts); err != nil {
			s.abort(ctx, batch, err)
			return nil, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"product_id": product.ID,
		"attempt_id": batch.AttemptID,
		"targets":    len(batch.items),
	}).Info("Sync batch prepared")

	return batch, nil
}

func (s *SyncService) validateTarget(ctx context.Context, product *models.Product, target SyncTarget) (*syncItem, error) {
	if err := utils.ValidateStruct(&target); err != nil {
		return nil, apperrors.NewValidationError("invalid target %s: %v", target.StoreID, err)
	}

	store, err := s.stores.GetByID(ctx, target.StoreID)
	if err != nil {
		return nil, err
	}
	if !store.IsActive {
		return nil, apperrors.NewValidationError("store %s is not active", store.Domain)
	}

	for variantID, override := range target.Overrides {
		variant := product.VariantByID(variantID)
		if variant == nil {
			return nil, apperrors.NewValidationError("override references unknown variant %s", variantID)
		}
		price := variant.Price
		if override.Price != nil {
			price = *override.Price
		}
		if price.IsNegative() {
			return nil, apperrors.NewValidationError("price for variant %s cannot be negative", variantID)
		}
		compareAt := variant.CompareAtPrice
		if override.CompareAtPrice != nil {
			compareAt = override.CompareAtPrice
		}
		if compareAt != nil && !compareAt.GreaterThan(price) {
			return nil, apperrors.NewValidationError("compare-at price for variant %s must exceed its price", variantID)
		}
	}

	for variantID, qty := range target.AssignedInventory {
		if product.VariantByID(variantID) == nil {
			return nil, apperrors.NewValidationError("inventory assigned to unknown variant %s", variantID)
		}
		if qty < 0 {
			return nil, apperrors.NewValidationError("assigned inventory for variant %s cannot be negative", variantID)
		}
	}

	if target.LocationID != nil {
		loc := store.LocationByID(*target.LocationID)
		if loc == nil {
			return nil, apperrors.NewValidationError("location %s does not belong to store %s", *target.LocationID, store.Domain)
		}
		if !loc.IsActive || !loc.ShipsInventory {
			return nil, apperrors.NewValidationError("location %s cannot hold inventory", loc.Name)
		}
	}

	token, err := s.secrets.Open(store.EncryptedToken)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials for store %s: %w", store.ID, err)
	}

	return &syncItem{
		target: target,
		store:  store,
		creds: shopify.Credentials{
			Domain:      store.Domain,
			AccessToken: token,
			APIVersion:  store.APIVersion,
		},
		allocations: make(map[uuid.UUID]*allocation.Allocation, len(product.Variants)),
	}, nil
}

func (s *SyncService) strategyFor(target SyncTarget, opts SyncOptions) (allocation.Strategy, error) {
	switch {
	case target.Strategy != "":
		return allocation.ParseStrategy(target.Strategy)
	case opts.Strategy != "":
		return allocation.ParseStrategy(opts.Strategy)
	}
	return s.defaultStrategy, nil
}

func (s *SyncService) allocationRequest(variant *models.Variant, item *syncItem, strategy allocation.Strategy, committed int) allocation.Request {
	req := allocation.Request{
		VariantID:      variant.ID,
		MasterQuantity: variant.InventoryQuantity,
		Committed:      committed,
		Locations:      item.store.Locations,
		Strategy:       strategy,
		Weights:        item.target.Weights,
	}
	if qty, ok := item.target.AssignedInventory[variant.ID]; ok {
		req.Requested = &qty
	}
	if item.target.LocationID != nil {
		req.Locations = []models.Location{*item.store.LocationByID(*item.target.LocationID)}
		req.Strategy = allocation.StrategyPriority
		req.Weights = nil
	}
	return req
}

// commit allocates against the variant's master quantity as stored, read
// under the ledger lock, so a concurrent quantity edit is never missed.
func (s *SyncService) commit(ctx context.Context, batch *SyncBatch, product *models.Product, item *syncItem, opts SyncOptions) error {
	strategy, err := s.strategyFor(item.target, opts)
	if err != nil {
		return err
	}

	for i := range product.Variants {
		variant := &product.Variants[i]
		key := allocation.Key{ProductID: product.ID, VariantID: variant.ID, StoreID: item.store.ID}

		alloc, err := s.ledger.Commit(ctx, key, batch.AttemptID, func(committedElsewhere int) (*allocation.Allocation, error) {
			current, err := s.products.GetVariant(ctx, product.ID, variant.ID)
			if err != nil {
				return nil, err
			}
			return allocation.Allocate(s.allocationRequest(current, item, strategy, committedElsewhere))
		})
		if err != nil {
			return err
		}
		item.committed = append(item.committed, key)
		item.allocations[variant.ID] = alloc
	}
	return nil
}

func (s *SyncService) plan(ctx context.Context, batch *SyncBatch, product *models.Product, item *syncItem, opts SyncOptions) error {
	payload := buildPayload(product, item)
	hash, err := utils.HashJSON(payload)
	if err != nil {
		return fmt.Errorf("failed to hash payload: %w", err)
	}
	item.payload = payload
	item.hash = hash

	prior, err := s.tracker.Latest(ctx, product.ID, item.store.ID)
	if err != nil {
		return err
	}
	if prior != nil {
		payload.ShopifyProductID = prior.ShopifyProductID
		if !opts.ForceSync && prior.Status == models.SyncStatusCompleted && prior.PayloadHash == hash {
			item.skip = true
			item.result = *prior
			return nil
		}
	}

	pending, err := s.tracker.Record(ctx, models.SyncResult{
		ProductID:        product.ID,
		StoreID:          item.store.ID,
		Status:           models.SyncStatusPending,
		AttemptID:        batch.AttemptID,
		PayloadHash:      hash,
		ShopifyProductID: payload.ShopifyProductID,
	})
	if err != nil {
		return err
	}
	item.result = *pending
	return nil
}

// restore gives back the item's commitments. Rows a newer attempt has
// taken over are left alone.
func (s *SyncService) restore(ctx context.Context, batch *SyncBatch, item *syncItem) {
	for i := len(item.committed) - 1; i >= 0; i-- {
		key := item.committed[i]
		if _, err := s.ledger.Restore(ctx, key, batch.AttemptID); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"product_id": key.ProductID,
				"variant_id": key.VariantID,
				"store_id":   key.StoreID,
				"attempt_id": batch.AttemptID,
			}).Error("Failed to restore inventory commitment")
		}
	}
	item.committed = nil
}

func (s *SyncService) rollback(ctx context.Context, batch *SyncBatch) {
	for i := len(batch.items) - 1; i >= 0; i-- {
		s.restore(ctx, batch, batch.items[i])
	}
}

// abort undoes a batch whose pending records could not all be written.
func (s *SyncService) abort(ctx context.Context, batch *SyncBatch, cause error) {
	for _, item := range batch.items {
		if item.skip || item.result.AttemptID != batch.AttemptID {
			continue
		}
		if _, err := s.tracker.Record(ctx, models.SyncResult{
			ProductID: batch.ProductID,
			StoreID:   item.store.ID,
			Status:    models.SyncStatusFailed,
			AttemptID: batch.AttemptID,
			Error:     "aborted: " + cause.Error(),
		}); err != nil {
			logrus.WithError(err).WithField("store_id", item.store.ID).Warn("Failed to mark aborted sync")
		}
	}
	s.rollback(ctx, batch)
}

// Execute pushes every prepared target concurrently and waits for all of
// them. One store failing never affects another; results come back in target
// order.
func (s *SyncService) Execute(ctx context.Context, batch *SyncBatch) []models.SyncResult {
	results := make([]models.SyncResult, len(batch.items))

	var g errgroup.Group
	if s.maxConcurrency > 0 {
		g.SetLimit(s.maxConcurrency)
	}

	for i, item := range batch.items {
		if item.skip {
			results[i] = item.result
			continue
		}
		i, item := i, item
		g.Go(func() error {
			results[i] = s.push(ctx, batch, item)
			return nil
		})
	}
	g.Wait()

	return results
}

func (s *SyncService) push(ctx context.Context, batch *SyncBatch, item *syncItem) models.SyncResult {
	log := logrus.WithFields(logrus.Fields{
		"product_id": batch.ProductID,
		"store_id":   item.store.ID,
		"attempt_id": batch.AttemptID,
	})

	if _, err := s.record(ctx, batch, item, models.SyncStatusSyncing, "", ""); err != nil {
		// Cancelled or superseded before the push started; the store was
		// never contacted.
		s.restore(ctx, batch, item)
		return s.settledElsewhere(ctx, batch, item, err, log)
	}

	shopifyID, err := s.callAdapter(ctx, item)
	if err != nil {
		log.WithError(err).Warn("Store push failed")
		s.restore(ctx, batch, item)

		saved, recErr := s.record(ctx, batch, item, models.SyncStatusFailed, "", err.Error())
		if recErr != nil {
			return s.settledElsewhere(ctx, batch, item, recErr, log)
		}
		return *saved
	}

	saved, err := s.record(ctx, batch, item, models.SyncStatusCompleted, shopifyID, "")
	if err != nil {
		return s.settledElsewhere(ctx, batch, item, err, log)
	}
	log.WithField("shopify_product_id", shopifyID).Info("Store push completed")
	return *saved
}

// callAdapter bounds the push by the per-store timeout even when the adapter
// ignores its context.
func (s *SyncService) callAdapter(ctx context.Context, item *syncItem) (string, error) {
	pushCtx, cancel := context.WithTimeout(ctx, s.pushTimeout)
	defer cancel()

	type outcome struct {
		id  string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		id, err := s.adapter.UpsertProduct(pushCtx, item.creds, item.payload)
		done <- outcome{id, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) && pushCtx.Err() != nil && ctx.Err() == nil {
				return "", &apperrors.TimeoutError{StoreID: item.store.ID, After: s.pushTimeout}
			}
			return "", &apperrors.StoreAdapterError{StoreID: item.store.ID, Err: out.err}
		}
		if out.id == "" {
			return "", &apperrors.StoreAdapterError{StoreID: item.store.ID, Err: errors.New("store returned no product id")}
		}
		return out.id, nil
	case <-pushCtx.Done():
		if ctx.Err() != nil {
			return "", &apperrors.StoreAdapterError{StoreID: item.store.ID, Err: ctx.Err()}
		}
		return "", &apperrors.TimeoutError{StoreID: item.store.ID, After: s.pushTimeout}
	}
}

func (s *SyncService) record(ctx context.Context, batch *SyncBatch, item *syncItem, status models.SyncStatus, shopifyID, reason string) (*models.SyncResult, error) {
	return s.tracker.Record(ctx, models.SyncResult{
		ProductID:        batch.ProductID,
		StoreID:          item.store.ID,
		Status:           status,
		ShopifyProductID: shopifyID,
		Error:            reason,
		AttemptID:        batch.AttemptID,
		PayloadHash:      item.hash,
	})
}

// settledElsewhere handles a write the tracker refused, typically a late
// result after a cancel. The stored record wins.
func (s *SyncService) settledElsewhere(ctx context.Context, batch *SyncBatch, item *syncItem, err error, log *logrus.Entry) models.SyncResult {
	if apperrors.IsStaleWrite(err) {
		log.WithError(err).Warn("Ignoring late sync result")
	} else {
		log.WithError(err).Error("Failed to record sync result")
	}

	current, getErr := s.tracker.Latest(ctx, batch.ProductID, item.store.ID)
	if getErr == nil && current != nil {
		return *current
	}
	return models.SyncResult{
		ProductID: batch.ProductID,
		StoreID:   item.store.ID,
		Status:    models.SyncStatusFailed,
		AttemptID: batch.AttemptID,
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	}
}

// Cancel fails every non-terminal result of the product. Pushes already in
// flight are not interrupted; their late results are rejected by the tracker.
// Targets still pending give their commitments back.
func (s *SyncService) Cancel(ctx context.Context, productID uuid.UUID) (int, error) {
	results, err := s.tracker.Get(ctx, productID)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, r := range results {
		if r.Status.IsTerminal() {
			continue
		}
		ok, err := s.settleUnfinished(ctx, r, cancelledReason)
		if err != nil {
			return cancelled, err
		}
		if ok {
			cancelled++
		}
	}

	logrus.WithFields(logrus.Fields{
		"product_id": productID,
		"cancelled":  cancelled,
	}).Info("Sync cancelled")

	return cancelled, nil
}

// Recover fails results left pending or syncing by a process that stopped
// before finishing them, such as a server restart between Prepare and the
// push. Only results older than the configured SYNC_RECOVER_AFTER are
// touched. Pending targets give their commitments back; syncing ones keep
// them since the store may already hold the inventory.
func (s *SyncService) Recover(ctx context.Context) (int, error) {
	results, err := s.tracker.Unsettled(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-s.recoverAfter)
	recovered := 0
	for _, r := range results {
		if s.recoverAfter > 0 && r.Timestamp.After(cutoff) {
			continue
		}
		ok, err := s.settleUnfinished(ctx, r, interruptedReason)
		if err != nil {
			return recovered, err
		}
		if ok {
			recovered++
		}
	}

	if recovered > 0 {
		logrus.WithField("recovered", recovered).Warn("Failed interrupted syncs")
	}
	return recovered, nil
}

// settleUnfinished marks r failed for its own attempt. It reports false when
// the record moved on in the meantime.
func (s *SyncService) settleUnfinished(ctx context.Context, r models.SyncResult, reason string) (bool, error) {
	_, err := s.tracker.Record(ctx, models.SyncResult{
		ProductID:   r.ProductID,
		StoreID:     r.StoreID,
		Status:      models.SyncStatusFailed,
		AttemptID:   r.AttemptID,
		PayloadHash: r.PayloadHash,
		Error:       reason,
	})
	if err != nil {
		if apperrors.IsStaleWrite(err) {
			return false, nil
		}
		return false, err
	}

	if r.Status == models.SyncStatusPending {
		if _, err := s.ledger.RestoreAttempt(ctx, r.ProductID, r.StoreID, r.AttemptID); err != nil {
			return true, fmt.Errorf("failed to restore commitments for store %s: %w", r.StoreID, err)
		}
	}
	return true, nil
}

// VariantAllocation is one row of an allocation preview.
type VariantAllocation struct {
	VariantID          uuid.UUID              `json:"variant_id"`
	Title              string                 `json:"title"`
	MasterQuantity     int                    `json:"master_quantity"`
	CommittedElsewhere int                    `json:"committed_elsewhere"`
	Allocation         *allocation.Allocation `json:"allocation,omitempty"`
	Error              string                 `json:"error,omitempty"`
}

// PreviewAllocation runs the engine for one target against the current ledger
// without committing anything.
func (s *SyncService) PreviewAllocation(ctx context.Context, product *models.Product, target SyncTarget, opts SyncOptions) ([]VariantAllocation, error) {
	item, err := s.validateTarget(ctx, product, target)
	if err != nil {
		return nil, err
	}
	strategy, err := s.strategyFor(target, opts)
	if err != nil {
		return nil, err
	}

	out := make([]VariantAllocation, 0, len(product.Variants))
	for i := range product.Variants {
		variant := &product.Variants[i]
		key := allocation.Key{ProductID: product.ID, VariantID: variant.ID, StoreID: item.store.ID}

		elsewhere, err := s.ledger.CommittedElsewhere(ctx, key)
		if err != nil {
			return nil, err
		}

		row := VariantAllocation{
			VariantID:          variant.ID,
			Title:              variant.Title,
			MasterQuantity:     variant.InventoryQuantity,
			CommittedElsewhere: elsewhere,
		}
		alloc, err := allocation.Allocate(s.allocationRequest(variant, item, strategy, elsewhere))
		switch {
		case err == nil:
			row.Allocation = alloc
		case apperrors.IsInsufficientInventory(err):
			row.Error = err.Error()
		default:
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// buildPayload merges the target's overrides and allocations into a copy of
// the product. The canonical product is left untouched.
func buildPayload(product *models.Product, item *syncItem) *shopify.ProductPayload {
	work := product.Clone()

	payload := &shopify.ProductPayload{
		Title:           work.Title,
		DescriptionHTML: work.Description,
		Vendor:          work.Vendor,
		ProductType:     work.ProductType,
		Status:          string(work.Status),
		Tags:            append([]string(nil), work.Tags...),
		CollectionIDs:   append([]string(nil), item.target.CollectionIDs...),
	}
	if payload.Status == "" {
		payload.Status = string(models.ProductStatusDraft)
	}
	sort.Strings(payload.CollectionIDs)

	options := append([]models.ProductOption(nil), work.Options...)
	sort.SliceStable(options, func(i, j int) bool { return options[i].Position < options[j].Position })
	for _, opt := range options {
		payload.Options = append(payload.Options, shopify.OptionPayload{
			Name:   opt.Name,
			Values: append([]string(nil), opt.Values...),
		})
	}

	variants := work.Variants
	sort.SliceStable(variants, func(i, j int) bool { return variants[i].Position < variants[j].Position })
	for i := range variants {
		v := &variants[i]
		if override, ok := item.target.Overrides[v.ID]; ok {
			if override.Price != nil {
				v.Price = *override.Price
			}
			if override.CompareAtPrice != nil {
				compareAt := *override.CompareAtPrice
				v.CompareAtPrice = &compareAt
			}
			if override.SKU != nil {
				v.SKU = *override.SKU
			}
		}

		vp := shopify.VariantPayload{
			LocalID:    v.ID.String(),
			SKU:        v.SKU,
			Barcode:    v.Barcode,
			Price:      v.Price.StringFixed(2),
			WeightUnit: string(v.WeightUnit),
		}
		if v.CompareAtPrice != nil {
			vp.CompareAtPrice = v.CompareAtPrice.StringFixed(2)
		}
		if !v.Weight.IsZero() {
			vp.Weight = v.Weight.String()
		}
		for _, ov := range v.OptionValues {
			vp.OptionValues = append(vp.OptionValues, shopify.OptionValue{OptionName: ov.OptionName, Name: ov.Value})
		}
		if alloc := item.allocations[v.ID]; alloc != nil {
			vp.Inventory = inventoryFor(item.store, alloc)
		}
		payload.Variants = append(payload.Variants, vp)
	}

	media := append([]models.ProductMedia(nil), work.Media...)
	sort.SliceStable(media, func(i, j int) bool { return media[i].Position < media[j].Position })
	for _, m := range media {
		payload.Media = append(payload.Media, shopify.MediaPayload{URL: m.URL, Alt: m.Alt})
	}

	return payload
}

func inventoryFor(store *models.Store, alloc *allocation.Allocation) []shopify.InventoryQuantity {
	out := make([]shopify.InventoryQuantity, 0, len(alloc.Quantities))
	for locationID, qty := range alloc.Quantities {
		loc := store.LocationByID(locationID)
		if loc == nil || loc.ShopifyLocationID == "" {
			continue
		}
		out = append(out, shopify.InventoryQuantity{LocationID: loc.ShopifyLocationID, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })
	return out
}
