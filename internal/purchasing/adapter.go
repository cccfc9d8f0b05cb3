package purchasing

import "context"

// NotificationKind discriminates inbound store notifications.
type NotificationKind string

const (
	NotificationPurchased        NotificationKind = "purchased"
	NotificationPurchaseFailed   NotificationKind = "purchase_failed"
	NotificationPurchaseDeferred NotificationKind = "purchase_deferred"
)

// Notification is one inbound store event. Notifications are keyed by store
// id; correlation with in-flight transactions happens in the orchestrator.
type Notification struct {
	Kind    NotificationKind
	StoreID string
	Receipt string        // purchased only
	Reason  FailureReason // purchase_failed only
}

// ProductDescriptor declares a product to the store backend at initialization.
type ProductDescriptor struct {
	StoreID string
	Kind    ProductKind
}

// ProductMetadata is the store's view of one product, queryable after a
// successful initialization.
type ProductMetadata struct {
	StoreID             string
	LocalizedPrice      string
	CurrencyCode        string
	DisplayPrice        string
	AvailableToPurchase bool
	HasReceipt          bool
	ReceiptDeferred     bool
}

// StoreAdapter abstracts the concrete commerce backend. The backend is
// external and latency-unbounded: purchase outcomes are delivered through the
// notification channel, possibly much later, duplicated, or with no matching
// in-flight transaction.
type StoreAdapter interface {
	// Initialize registers the product set with the backend and blocks until
	// the backend is ready or failed. Cancelling the context aborts the wait.
	Initialize(ctx context.Context, products []ProductDescriptor) error

	// InitiatePurchase submits a purchase for the store id. The outcome is
	// delivered later through the notification channel.
	InitiatePurchase(storeID string) error

	// ConfirmPendingPurchase acknowledges to the backend that the purchased
	// entitlement has been granted to the user.
	ConfirmPendingPurchase(storeID string) error

	// Restore asks the backend to replay prior non-consumable and
	// subscription entitlements. Restored purchases surface through the
	// notification channel like ordinary ones.
	Restore(ctx context.Context) error

	// Metadata returns the backend's product metadata after initialization.
	Metadata(storeID string) (ProductMetadata, bool)

	// Notifications is the inbound store event stream. The channel is closed
	// when the adapter shuts down.
	Notifications() <-chan Notification
}

// ReceiptValidator decides whether a purchase receipt is acceptable. A nil
// validator means all receipts are accepted.
type ReceiptValidator interface {
	Validate(ctx context.Context, receipt string) (bool, error)
}
