package purchasing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purchase-api/internal/purchasing"
	"purchase-api/internal/store/fake"
)

type eventLog struct {
	mu     sync.Mutex
	events []purchasing.Event
}

func (l *eventLog) record(e purchasing.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) types() []purchasing.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]purchasing.EventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

func (l *eventLog) count(t purchasing.EventType) int {
	n := 0
	for _, e := range l.types() {
		if e == t {
			n++
		}
	}
	return n
}

func (l *eventLog) transaction() *purchasing.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Transaction != nil {
			return e.Transaction
		}
	}
	return nil
}

type anomalyLog struct {
	mu   sync.Mutex
	msgs []string
}

func (a *anomalyLog) record(msg string) {
	a.mu.Lock()
	a.msgs = append(a.msgs, msg)
	a.mu.Unlock()
}

func (a *anomalyLog) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.msgs)
}

type acceptValidator struct{}

func (acceptValidator) Validate(ctx context.Context, receipt string) (bool, error) {
	return true, nil
}

type rejectValidator struct{}

func (rejectValidator) Validate(ctx context.Context, receipt string) (bool, error) {
	return false, nil
}

var testDefs = []purchasing.ProductDef{
	{ID: "gold_100", Kind: purchasing.Consumable},
	{ID: "premium", Kind: purchasing.NonConsumable},
	{ID: "club", Kind: purchasing.Subscription},
}

func newService(t *testing.T, opts ...purchasing.Option) (*purchasing.Service, *fake.Store, *eventLog, *anomalyLog) {
	t.Helper()

	store := fake.New()
	anomalies := &anomalyLog{}
	opts = append(opts, purchasing.WithAnomalyHook(anomalies.record))

	svc := purchasing.NewService(store, opts...)

	log := &eventLog{}
	svc.Events().Subscribe(log.record)

	require.NoError(t, svc.Initialize(context.Background(), testDefs...))
	require.True(t, svc.IsInitialized())
	return svc, store, log, anomalies
}

// waitInitiated blocks until the store has received the purchase submission
// for the given store id.
func waitInitiated(t *testing.T, store *fake.Store, storeID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, id := range store.Initiated() {
			if id == storeID {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

func TestInitializeSyncsCatalogFromStoreMetadata(t *testing.T) {
	store := fake.New()
	store.SeedProduct(purchasing.ProductMetadata{
		StoreID: "gold_100", AvailableToPurchase: true,
		LocalizedPrice: "0.99", CurrencyCode: "USD", DisplayPrice: "$0.99",
	})
	store.SeedProduct(purchasing.ProductMetadata{
		StoreID: "premium", AvailableToPurchase: true, HasReceipt: true,
	})
	store.SeedProduct(purchasing.ProductMetadata{
		StoreID: "club", AvailableToPurchase: false,
	})

	svc := purchasing.NewService(store)
	require.NoError(t, svc.Initialize(context.Background(), testDefs...))

	gold, err := svc.FindProduct("gold_100")
	require.NoError(t, err)
	assert.Equal(t, purchasing.StatusReady, gold.Status())
	assert.Equal(t, "$0.99", gold.Price().Display)

	premium, err := svc.FindProduct("premium")
	require.NoError(t, err)
	assert.Equal(t, purchasing.StatusPurchased, premium.Status())

	club, err := svc.FindProduct("club")
	require.NoError(t, err)
	assert.Equal(t, purchasing.StatusNone, club.Status())
}

func TestInitializeStoreFailure(t *testing.T) {
	store := fake.New()
	store.FailInitialize(errors.New("billing unavailable"))

	svc := purchasing.NewService(store)
	err := svc.Initialize(context.Background(), testDefs...)
	require.Error(t, err)

	var initErr *purchasing.InitializationError
	assert.ErrorAs(t, err, &initErr)
	assert.False(t, svc.IsInitialized())

	_, err = svc.Purchase(context.Background(), "gold_100")
	assert.ErrorIs(t, err, purchasing.ErrNotInitialized)
	assert.ErrorIs(t, svc.Restore(context.Background()), purchasing.ErrNotInitialized)
}

func TestInitializeAbortedByLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := purchasing.NewService(fake.New(), purchasing.WithLifecycle(ctx))
	err := svc.Initialize(context.Background(), testDefs...)
	assert.ErrorIs(t, err, purchasing.ErrLifecycle)
	assert.False(t, svc.IsInitialized())
}

func TestPurchaseUnknownProduct(t *testing.T) {
	svc, _, _, _ := newService(t)

	_, err := svc.Purchase(context.Background(), "missing")
	assert.ErrorIs(t, err, purchasing.ErrNotFound)
}

func TestPurchaseConsumableSuccess(t *testing.T) {
	svc, store, log, anomalies := newService(t, purchasing.WithValidator(acceptValidator{}))

	go func() {
		waitInitiated(t, store, "gold_100")
		store.EmitPurchased("gold_100", "receipt-1")
	}()

	tx, err := svc.Purchase(context.Background(), "gold_100")
	require.NoError(t, err)
	assert.Equal(t, purchasing.StateSuccessful, tx.State())

	gold, _ := svc.FindProduct("gold_100")
	assert.Equal(t, purchasing.StatusReady, gold.Status(), "consumables are immediately re-purchasable")

	assert.Equal(t, []purchasing.EventType{
		purchasing.EventTransactionBegin,
		purchasing.EventTransactionSuccess,
		purchasing.EventTransactionCompleted,
		purchasing.EventProductPurchased,
	}, log.types())
	assert.Zero(t, anomalies.len())
}

func TestPurchaseNonConsumableSuccess(t *testing.T) {
	svc, store, _, _ := newService(t)

	go func() {
		waitInitiated(t, store, "premium")
		store.EmitPurchased("premium", "receipt-2")
	}()

	tx, err := svc.Purchase(context.Background(), "premium")
	require.NoError(t, err)
	assert.Equal(t, purchasing.StateSuccessful, tx.State())

	premium, _ := svc.FindProduct("premium")
	assert.Equal(t, purchasing.StatusPurchased, premium.Status())
}

func TestPurchaseUserCancelled(t *testing.T) {
	svc, store, log, _ := newService(t)

	go func() {
		waitInitiated(t, store, "gold_100")
		store.EmitFailed("gold_100", purchasing.ReasonUserCancelled)
	}()

	tx, err := svc.Purchase(context.Background(), "gold_100")
	require.NoError(t, err)
	assert.Equal(t, purchasing.StateCanceled, tx.State())
	assert.Equal(t, string(purchasing.ReasonUserCancelled), tx.Err())

	gold, _ := svc.FindProduct("gold_100")
	assert.Equal(t, purchasing.StatusReady, gold.Status())

	assert.Equal(t, []purchasing.EventType{
		purchasing.EventTransactionBegin,
		purchasing.EventTransactionCanceled,
		purchasing.EventTransactionCompleted,
	}, log.types())
	assert.Zero(t, log.count(purchasing.EventTransactionFailed),
		"a user cancellation is never reported as a plain failure")
}

func TestPurchaseFailure(t *testing.T) {
	svc, store, log, _ := newService(t)

	go func() {
		waitInitiated(t, store, "club")
		store.EmitFailed("club", purchasing.ReasonPurchasingUnavailable)
	}()

	tx, err := svc.Purchase(context.Background(), "club")
	require.NoError(t, err)
	assert.Equal(t, purchasing.StateFailed, tx.State())
	assert.Equal(t, string(purchasing.ReasonPurchasingUnavailable), tx.Err())
	assert.Equal(t, 1, log.count(purchasing.EventTransactionFailed))
	assert.Equal(t, 1, log.count(purchasing.EventTransactionCompleted))
}

func TestPurchaseConflict(t *testing.T) {
	svc, store, _, _ := newService(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.Purchase(context.Background(), "gold_100")
		assert.NoError(t, err)
	}()

	waitInitiated(t, store, "gold_100")

	_, err := svc.Purchase(context.Background(), "gold_100")
	assert.ErrorIs(t, err, purchasing.ErrConflict)

	store.EmitPurchased("gold_100", "receipt")
	<-done
}

func TestPurchaseAbortedByCallerContext(t *testing.T) {
	svc, store, _, _ := newService(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		waitInitiated(t, store, "gold_100")
		cancel()
	}()

	tx, err := svc.Purchase(ctx, "gold_100")
	assert.ErrorIs(t, err, purchasing.ErrLifecycle)
	require.NotNil(t, tx)
	assert.Equal(t, purchasing.StateProcessing, tx.State(),
		"teardown does not invent a store outcome")
}

func TestDeferredPurchaseResolvesLater(t *testing.T) {
	svc, store, log, anomalies := newService(t)

	go func() {
		waitInitiated(t, store, "premium")
		store.EmitDeferred("premium")
	}()

	purchaseDone := make(chan *purchasing.Transaction, 1)
	go func() {
		tx, err := svc.Purchase(context.Background(), "premium")
		assert.NoError(t, err)
		purchaseDone <- tx
	}()

	require.Eventually(t, func() bool {
		return log.count(purchasing.EventTransactionPending) == 1
	}, time.Second, time.Millisecond)

	tx := log.transaction()
	require.NotNil(t, tx)
	assert.Equal(t, purchasing.StatePending, tx.State())

	premium, _ := svc.FindProduct("premium")
	assert.Equal(t, purchasing.StatusPending, premium.Status())

	// A later notification resolves the still-registered transaction.
	store.EmitPurchased("premium", "receipt-deferred")

	resolved := <-purchaseDone
	assert.Same(t, tx, resolved)
	assert.Equal(t, purchasing.StateSuccessful, resolved.State())
	assert.Equal(t, purchasing.StatusPurchased, premium.Status())
	assert.Zero(t, anomalies.len())
}

func TestDuplicatePurchasedNotificationIsAbsorbed(t *testing.T) {
	svc, store, log, anomalies := newService(t)

	go func() {
		waitInitiated(t, store, "gold_100")
		store.EmitPurchased("gold_100", "receipt")
	}()

	_, err := svc.Purchase(context.Background(), "gold_100")
	require.NoError(t, err)

	completed := log.count(purchasing.EventTransactionCompleted)
	purchased := log.count(purchasing.EventProductPurchased)

	store.EmitPurchased("gold_100", "receipt")

	require.Eventually(t, func() bool { return anomalies.len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, completed, log.count(purchasing.EventTransactionCompleted))
	assert.Equal(t, purchased, log.count(purchasing.EventProductPurchased))

	gold, _ := svc.FindProduct("gold_100")
	assert.Equal(t, purchasing.StatusReady, gold.Status())
}

func TestStoreInitiatedCompletion(t *testing.T) {
	svc, store, log, anomalies := newService(t)

	// No Purchase call: the store resolved a previously pending receipt.
	store.EmitPurchased("premium", "receipt-out-of-band")

	require.Eventually(t, func() bool {
		return log.count(purchasing.EventProductPurchased) == 1
	}, time.Second, time.Millisecond)

	premium, _ := svc.FindProduct("premium")
	assert.Equal(t, purchasing.StatusPurchased, premium.Status())
	assert.Zero(t, log.count(purchasing.EventTransactionCompleted))
	assert.Zero(t, anomalies.len())
}

func TestNotificationForUnknownStoreID(t *testing.T) {
	svc, store, log, anomalies := newService(t)

	store.SeedProduct(purchasing.ProductMetadata{StoreID: "rogue", AvailableToPurchase: true})
	store.EmitPurchased("rogue", "receipt")

	require.Eventually(t, func() bool { return anomalies.len() == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, log.types())

	for _, p := range svc.Products() {
		assert.NotEqual(t, purchasing.StatusPurchased, p.Status())
	}
}

func TestDuplicateTransactionFailureCompletesPurchase(t *testing.T) {
	svc, store, _, _ := newService(t)

	go func() {
		waitInitiated(t, store, "premium")
		store.EmitFailed("premium", purchasing.ReasonDuplicateTransaction)
	}()

	tx, err := svc.Purchase(context.Background(), "premium")
	require.NoError(t, err)
	assert.Equal(t, purchasing.StateSuccessful, tx.State(),
		"a duplicate-transaction failure means the item is already owned")

	premium, _ := svc.FindProduct("premium")
	assert.Equal(t, purchasing.StatusPurchased, premium.Status())
}

func TestRejectedReceiptFailsTransaction(t *testing.T) {
	svc, store, log, _ := newService(t, purchasing.WithValidator(rejectValidator{}))

	go func() {
		waitInitiated(t, store, "gold_100")
		store.EmitPurchased("gold_100", "forged-receipt")
	}()

	tx, err := svc.Purchase(context.Background(), "gold_100")
	require.NoError(t, err)
	assert.Equal(t, purchasing.StateFailed, tx.State())
	assert.Equal(t, string(purchasing.ReasonReceiptRejected), tx.Err())

	gold, _ := svc.FindProduct("gold_100")
	assert.Equal(t, purchasing.StatusReady, gold.Status())
	assert.Zero(t, log.count(purchasing.EventProductPurchased))
}

func TestConfirmResolvesOutOfBandReceipt(t *testing.T) {
	svc, store, _, _ := newService(t)

	purchaseDone := make(chan *purchasing.Transaction, 1)
	go func() {
		tx, err := svc.Purchase(context.Background(), "gold_100")
		assert.NoError(t, err)
		purchaseDone <- tx
	}()

	waitInitiated(t, store, "gold_100")

	gold, err := svc.FindProduct("gold_100")
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(gold))

	tx := <-purchaseDone
	assert.Equal(t, purchasing.StateSuccessful, tx.State())
	assert.Equal(t, []string{"gold_100"}, store.Confirmed())
}

func TestConfirmWithoutActiveTransaction(t *testing.T) {
	svc, store, log, _ := newService(t)

	gold, err := svc.FindProduct("gold_100")
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(gold))

	assert.Equal(t, []string{"gold_100"}, store.Confirmed())
	assert.Empty(t, log.types())
}

func TestRestoreResyncsCatalog(t *testing.T) {
	svc, store, _, _ := newService(t)

	premium, _ := svc.FindProduct("premium")
	require.Equal(t, purchasing.StatusReady, premium.Status())

	// The store now reports a settled receipt for the entitlement.
	store.SeedProduct(purchasing.ProductMetadata{
		StoreID: "premium", AvailableToPurchase: true, HasReceipt: true,
	})

	require.NoError(t, svc.Restore(context.Background()))
	assert.Equal(t, 1, store.Restores())
	assert.Equal(t, purchasing.StatusPurchased, premium.Status())
}

func TestPurchaseWithCallerSuppliedTransactionID(t *testing.T) {
	svc, store, _, _ := newService(t)

	gold, err := svc.FindProduct("gold_100")
	require.NoError(t, err)

	go func() {
		waitInitiated(t, store, "gold_100")
		store.EmitPurchased("gold_100", "receipt")
	}()

	tx, err := svc.PurchaseTransaction(context.Background(), purchasing.NewTransaction(gold, "order-7"))
	require.NoError(t, err)
	assert.Equal(t, "order-7", tx.ID())
	assert.Equal(t, purchasing.StateSuccessful, tx.State())
}
