package purchasing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"purchase-api/pkg/logging"
)

const receiptValidationTimeout = 30 * time.Second

// Service orchestrates the purchase lifecycle: it owns the catalog and the
// transaction registry, drives the store adapter, and reconciles asynchronous
// store notifications into state transitions and events.
//
// Initialize must complete successfully, and must not be called concurrently
// with itself, before any other operation is used.
type Service struct {
	store     StoreAdapter
	validator ReceiptValidator
	platform  Platform
	resolver  StoreIDResolver
	lifecycle context.Context
	events    *Dispatcher
	registry  *Registry

	anomalyHook func(string)

	// mu serializes compound correlate-then-mutate sections so that at most
	// one resolution of a given transaction or product is in flight at a
	// time. Events are published outside of it.
	mu          sync.Mutex
	catalog     *Catalog
	initialized atomic.Bool
	loopOnce    sync.Once
}

// Option configures a Service.
type Option func(*Service)

// WithValidator sets the receipt validator. Without one, completed purchases
// are accepted unconditionally.
func WithValidator(v ReceiptValidator) Option {
	return func(s *Service) { s.validator = v }
}

// WithPlatform sets the platform used for store-id resolution.
func WithPlatform(p Platform) Option {
	return func(s *Service) { s.platform = p }
}

// WithStoreIDResolver overrides the store-id resolution function.
func WithStoreIDResolver(r StoreIDResolver) Option {
	return func(s *Service) { s.resolver = r }
}

// WithLifecycle ties suspended operations to a process-lifetime context.
// When it is cancelled, suspended Initialize/Purchase/Restore calls fail fast
// with ErrLifecycle instead of waiting on the store forever.
func WithLifecycle(ctx context.Context) Option {
	return func(s *Service) { s.lifecycle = ctx }
}

// WithAnomalyHook registers an observer for protocol anomalies in addition to
// the log. Anomalies are never surfaced to callers.
func WithAnomalyHook(fn func(string)) Option {
	return func(s *Service) { s.anomalyHook = fn }
}

// NewService creates an orchestrator on top of the given store adapter.
func NewService(store StoreAdapter, opts ...Option) *Service {
	s := &Service{
		store:     store,
		platform:  PlatformIOS,
		resolver:  DefaultStoreIDResolver,
		lifecycle: context.Background(),
		events:    NewDispatcher(),
		registry:  NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events exposes the lifecycle event subscription surface.
func (s *Service) Events() *Dispatcher {
	return s.events
}

// IsInitialized reports whether Initialize has completed successfully.
func (s *Service) IsInitialized() bool {
	return s.initialized.Load()
}

// Initialize builds the catalog, brings the store adapter up, and syncs
// product price and status from store metadata. It suspends until the adapter
// reports ready or failed; cancellation of the call or lifecycle context
// aborts the wait with ErrLifecycle.
func (s *Service) Initialize(ctx context.Context, defs ...ProductDef) error {
	if s.initialized.Load() {
		return &InitializationError{Reason: "already initialized"}
	}

	catalog, err := NewCatalog(s.platform, s.resolver, defs)
	if err != nil {
		return &InitializationError{Reason: "invalid catalog", Err: err}
	}

	descriptors := make([]ProductDescriptor, 0, len(defs))
	for _, p := range catalog.Products() {
		descriptors = append(descriptors, ProductDescriptor{StoreID: p.StoreID(), Kind: p.Kind()})
	}

	waitCtx, cancel := s.callContext(ctx)
	defer cancel()

	if err := s.store.Initialize(waitCtx, descriptors); err != nil {
		if waitCtx.Err() != nil {
			return fmt.Errorf("initialize: %w", ErrLifecycle)
		}
		return &InitializationError{Reason: "store adapter failed", Err: err}
	}

	s.mu.Lock()
	s.catalog = catalog
	s.mu.Unlock()

	s.loopOnce.Do(func() {
		go s.consumeNotifications(s.store.Notifications())
	})

	s.syncCatalog(catalog)
	s.initialized.Store(true)
	logging.Infof("purchase service initialized with %d products on %s", len(defs), s.platform)
	return nil
}

// FindProduct looks a product up by application id.
func (s *Service) FindProduct(id string) (*Product, error) {
	if !s.initialized.Load() {
		return nil, ErrNotInitialized
	}
	p, ok := s.catalog.Resolve(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return p, nil
}

// Products returns the catalog products in declaration order.
func (s *Service) Products() []*Product {
	if !s.initialized.Load() {
		return nil
	}
	return s.catalog.Products()
}

// Purchase resolves the product by application id and purchases it.
func (s *Service) Purchase(ctx context.Context, productID string) (*Transaction, error) {
	product, err := s.FindProduct(productID)
	if err != nil {
		return nil, err
	}
	return s.PurchaseProduct(ctx, product)
}

// PurchaseProduct purchases a product under a generated transaction id.
func (s *Service) PurchaseProduct(ctx context.Context, product *Product) (*Transaction, error) {
	return s.PurchaseTransaction(ctx, NewTransaction(product, ""))
}

// PurchaseTransaction submits a caller-constructed transaction to the store
// and suspends until it reaches a terminal state. It fails with ErrConflict
// when the product already has an active transaction and with ErrLifecycle
// when the call or lifecycle context is cancelled while waiting.
func (s *Service) PurchaseTransaction(ctx context.Context, tx *Transaction) (*Transaction, error) {
	if !s.initialized.Load() {
		return nil, ErrNotInitialized
	}
	if tx.State() != StateCreated {
		return nil, fmt.Errorf("transaction %s is already %s", tx.ID(), tx.State())
	}

	if err := s.registry.Begin(tx); err != nil {
		return nil, err
	}
	if err := tx.transition(StateProcessing, ""); err != nil {
		return nil, err
	}
	s.events.publish(Event{Type: EventTransactionBegin, Transaction: tx, Product: tx.Product()})

	logging.Infof("purchase %q started, transaction %s", tx.Product().ID(), tx.ID())

	if err := s.store.InitiatePurchase(tx.Product().StoreID()); err != nil {
		s.resolveFailure(tx, tx.Product(), FailureReason(err.Error()))
		return tx, fmt.Errorf("initiate purchase for %q: %w", tx.Product().ID(), err)
	}

	waitCtx, cancel := s.callContext(ctx)
	defer cancel()

	select {
	case <-tx.Done():
		return tx, nil
	case <-waitCtx.Done():
		return tx, fmt.Errorf("purchase %q: %w", tx.Product().ID(), ErrLifecycle)
	}
}

// Confirm acknowledges the entitlement grant to the store backend. If an
// active transaction still exists for the product it is resolved successful;
// this covers backends that settle receipts out-of-band from the purchase
// notification flow.
func (s *Service) Confirm(product *Product) error {
	if !s.initialized.Load() {
		return ErrNotInitialized
	}

	if err := s.store.ConfirmPendingPurchase(product.StoreID()); err != nil {
		return fmt.Errorf("confirm %q: %w", product.ID(), err)
	}

	if tx, ok := s.registry.FindByStoreID(product.StoreID()); ok {
		s.resolveSuccess(tx, product)
	}
	return nil
}

// Restore asks the store to replay prior entitlements and suspends until the
// backend reports completion, then re-syncs catalog status. Restored purchases
// themselves arrive through the ordinary notification path.
func (s *Service) Restore(ctx context.Context) error {
	if !s.initialized.Load() {
		return ErrNotInitialized
	}

	waitCtx, cancel := s.callContext(ctx)
	defer cancel()

	if err := s.store.Restore(waitCtx); err != nil {
		if waitCtx.Err() != nil {
			return fmt.Errorf("restore: %w", ErrLifecycle)
		}
		return fmt.Errorf("restore: %w", err)
	}

	s.syncCatalog(s.catalog)
	return nil
}

// callContext derives a context cancelled by either the caller's context or
// the process lifecycle context.
func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.lifecycle, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Service) syncCatalog(catalog *Catalog) {
	for _, p := range catalog.Products() {
		meta, ok := s.store.Metadata(p.StoreID())
		if !ok {
			s.reportAnomaly(fmt.Sprintf("no store metadata for product %q (store id %q)", p.ID(), p.StoreID()))
			continue
		}
		catalog.SyncFromStore(meta)
	}
}

func (s *Service) consumeNotifications(ch <-chan Notification) {
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			s.handleNotification(n)
		case <-s.lifecycle.Done():
			return
		}
	}
}

// handleNotification is the reconciliation core: it correlates an inbound
// store notification with the catalog product and the active transaction for
// its store id, and applies the resulting state transition.
func (s *Service) handleNotification(n Notification) {
	switch n.Kind {
	case NotificationPurchased:
		s.completePurchase(n.StoreID, n.Receipt)
	case NotificationPurchaseDeferred:
		s.deferPurchase(n.StoreID)
	case NotificationPurchaseFailed:
		// Some backends report a re-purchase of an owned item as a duplicate
		// transaction failure; that is a completion, not a failure.
		if n.Reason == ReasonDuplicateTransaction {
			s.completePurchase(n.StoreID, n.Receipt)
			return
		}
		s.failPurchase(n.StoreID, n.Reason)
	default:
		s.reportAnomaly(fmt.Sprintf("unknown store notification kind %q for store id %q", n.Kind, n.StoreID))
	}
}

func (s *Service) completePurchase(storeID, receipt string) {
	product, ok := s.lookupProduct(storeID)
	if !ok {
		return
	}

	tx, active := s.registry.FindByStoreID(storeID)
	if !active {
		if prev, done := s.registry.LastCompleted(storeID); done && prev.State() == StateSuccessful {
			s.reportAnomaly(fmt.Sprintf("duplicate purchased notification for store id %q, transaction %s already successful", storeID, prev.ID()))
			return
		}
	}

	if accepted := s.validateReceipt(receipt); !accepted {
		if active {
			s.resolveFailure(tx, product, ReasonReceiptRejected)
		} else {
			s.reportAnomaly(fmt.Sprintf("receipt rejected for store-initiated purchase of store id %q", storeID))
		}
		return
	}

	if active {
		s.resolveSuccess(tx, product)
		return
	}

	// Store-initiated completion: a purchase resolved outside any Purchase
	// call, e.g. a previously pending receipt or a restored entitlement.
	s.mu.Lock()
	s.applyPurchasedStatus(product)
	s.mu.Unlock()
	s.events.publish(Event{Type: EventProductPurchased, Product: product})
}

func (s *Service) deferPurchase(storeID string) {
	product, ok := s.lookupProduct(storeID)
	if !ok {
		return
	}

	tx, active := s.registry.FindByStoreID(storeID)

	s.mu.Lock()
	if active {
		if err := tx.transition(StatePending, ""); err != nil {
			s.mu.Unlock()
			s.reportAnomaly(err.Error())
			return
		}
	}
	product.setStatus(StatusPending)
	s.mu.Unlock()

	if active {
		s.events.publish(Event{Type: EventTransactionPending, Transaction: tx, Product: product})
	}
}

func (s *Service) failPurchase(storeID string, reason FailureReason) {
	product, ok := s.lookupProduct(storeID)
	if !ok {
		return
	}

	tx, active := s.registry.FindByStoreID(storeID)
	if !active {
		// The store aborted something we are not tracking; the product is
		// purchasable again either way.
		s.mu.Lock()
		product.setStatus(StatusReady)
		s.mu.Unlock()
		s.reportAnomaly(fmt.Sprintf("purchase failure for store id %q with no active transaction: %s", storeID, reason))
		return
	}

	s.resolveFailure(tx, product, reason)
}

// resolveSuccess moves an active transaction to Successful, removes it from
// the registry, and applies the product-kind status policy.
func (s *Service) resolveSuccess(tx *Transaction, product *Product) {
	s.mu.Lock()
	if err := tx.transition(StateSuccessful, ""); err != nil {
		s.mu.Unlock()
		s.reportAnomaly(err.Error())
		return
	}
	if err := s.registry.Complete(tx); err != nil {
		s.reportAnomaly(err.Error())
	}
	s.applyPurchasedStatus(product)
	s.mu.Unlock()

	logging.Infof("purchase %q successful, transaction %s", product.ID(), tx.ID())
	s.events.publish(Event{Type: EventTransactionSuccess, Transaction: tx, Product: product})
	s.events.publish(Event{Type: EventTransactionCompleted, Transaction: tx, Product: product})
	s.events.publish(Event{Type: EventProductPurchased, Product: product})
	tx.markResolved()
}

// resolveFailure moves an active transaction to Failed, or Canceled when the
// reason indicates a user abort, and resets the product to Ready.
func (s *Service) resolveFailure(tx *Transaction, product *Product, reason FailureReason) {
	target := StateFailed
	eventType := EventTransactionFailed
	if reason == ReasonUserCancelled {
		target = StateCanceled
		eventType = EventTransactionCanceled
	}

	s.mu.Lock()
	if err := tx.transition(target, string(reason)); err != nil {
		s.mu.Unlock()
		s.reportAnomaly(err.Error())
		return
	}
	if err := s.registry.Complete(tx); err != nil {
		s.reportAnomaly(err.Error())
	}
	product.setStatus(StatusReady)
	s.mu.Unlock()

	logging.Infof("purchase %q %s: %s, transaction %s", product.ID(), target, reason, tx.ID())
	s.events.publish(Event{Type: eventType, Transaction: tx, Product: product})
	s.events.publish(Event{Type: EventTransactionCompleted, Transaction: tx, Product: product})
	tx.markResolved()
}

// applyPurchasedStatus sets the product status after a successful purchase:
// consumables return to Ready so they can be bought again, everything else
// becomes Purchased.
func (s *Service) applyPurchasedStatus(product *Product) {
	if product.Kind() == Consumable {
		product.setStatus(StatusReady)
		return
	}
	product.setStatus(StatusPurchased)
}

func (s *Service) lookupProduct(storeID string) (*Product, bool) {
	s.mu.Lock()
	catalog := s.catalog
	s.mu.Unlock()
	if catalog == nil {
		s.reportAnomaly(fmt.Sprintf("store notification for %q before catalog is built", storeID))
		return nil, false
	}

	product, ok := catalog.ResolveByStoreID(storeID)
	if !ok {
		s.reportAnomaly(fmt.Sprintf("store notification for unknown store id %q", storeID))
		return nil, false
	}
	return product, true
}

func (s *Service) validateReceipt(receipt string) bool {
	if s.validator == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(s.lifecycle, receiptValidationTimeout)
	defer cancel()

	accepted, err := s.validator.Validate(ctx, receipt)
	if err != nil {
		s.reportAnomaly(fmt.Sprintf("receipt validation error: %v", err))
		return false
	}
	return accepted
}

// reportAnomaly records a protocol anomaly: a notification that cannot be
// correlated or duplicates an already-resolved outcome. Anomalies never reach
// callers and never mutate state.
func (s *Service) reportAnomaly(msg string) {
	logging.Errorf("protocol anomaly: %s", msg)
	if s.anomalyHook != nil {
		s.anomalyHook(msg)
	}
}
