// Package fake provides an in-memory store adapter for tests and for running
// the server without a billing backend. Purchase outcomes are scripted by the
// caller through the Emit methods, or resolved automatically in auto-complete
// mode.
package fake

import (
	"context"
	"fmt"
	"sync"

	"purchase-api/internal/purchasing"
)

// Store is a scriptable purchasing.StoreAdapter.
type Store struct {
	mu           sync.Mutex
	meta         map[string]purchasing.ProductMetadata
	initErr      error
	initiated    []string
	confirmed    []string
	restores     int
	autoComplete bool

	notifications chan purchasing.Notification
	closeOnce     sync.Once
}

func New() *Store {
	return &Store{
		meta:          make(map[string]purchasing.ProductMetadata),
		notifications: make(chan purchasing.Notification, 64),
	}
}

// SeedProduct sets the metadata reported for a store id. Products not seeded
// before Initialize get default available-to-purchase metadata.
func (s *Store) SeedProduct(meta purchasing.ProductMetadata) {
	s.mu.Lock()
	s.meta[meta.StoreID] = meta
	s.mu.Unlock()
}

// FailInitialize makes the next Initialize call fail.
func (s *Store) FailInitialize(err error) {
	s.mu.Lock()
	s.initErr = err
	s.mu.Unlock()
}

// SetAutoComplete makes InitiatePurchase immediately emit a purchased
// notification, which is what the dev server runs with.
func (s *Store) SetAutoComplete(on bool) {
	s.mu.Lock()
	s.autoComplete = on
	s.mu.Unlock()
}

func (s *Store) Initialize(ctx context.Context, products []purchasing.ProductDescriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initErr != nil {
		return s.initErr
	}

	for _, p := range products {
		if _, ok := s.meta[p.StoreID]; !ok {
			s.meta[p.StoreID] = purchasing.ProductMetadata{
				StoreID:             p.StoreID,
				LocalizedPrice:      "0.99",
				CurrencyCode:        "USD",
				DisplayPrice:        "$0.99",
				AvailableToPurchase: true,
			}
		}
	}
	return nil
}

func (s *Store) InitiatePurchase(storeID string) error {
	s.mu.Lock()
	_, known := s.meta[storeID]
	if known {
		s.initiated = append(s.initiated, storeID)
	}
	auto := s.autoComplete
	s.mu.Unlock()

	if !known {
		return fmt.Errorf("unknown store id %q", storeID)
	}
	if auto {
		go s.EmitPurchased(storeID, "fake-receipt-"+storeID)
	}
	return nil
}

func (s *Store) ConfirmPendingPurchase(storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meta[storeID]; !ok {
		return fmt.Errorf("unknown store id %q", storeID)
	}
	s.confirmed = append(s.confirmed, storeID)
	return nil
}

func (s *Store) Restore(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.restores++
	s.mu.Unlock()
	return nil
}

func (s *Store) Metadata(storeID string) (purchasing.ProductMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meta[storeID]
	return m, ok
}

func (s *Store) Notifications() <-chan purchasing.Notification {
	return s.notifications
}

// Ingest pushes an externally delivered notification, the same entry point
// the billing adapter exposes for its webhook.
func (s *Store) Ingest(n purchasing.Notification) error {
	select {
	case s.notifications <- n:
		return nil
	default:
		return fmt.Errorf("notification buffer full")
	}
}

// EmitPurchased delivers a purchased notification for the store id.
func (s *Store) EmitPurchased(storeID, receipt string) {
	s.notifications <- purchasing.Notification{
		Kind:    purchasing.NotificationPurchased,
		StoreID: storeID,
		Receipt: receipt,
	}
}

// EmitFailed delivers a purchase failure for the store id.
func (s *Store) EmitFailed(storeID string, reason purchasing.FailureReason) {
	s.notifications <- purchasing.Notification{
		Kind:    purchasing.NotificationPurchaseFailed,
		StoreID: storeID,
		Reason:  reason,
	}
}

// EmitDeferred delivers a deferred-purchase notification for the store id.
func (s *Store) EmitDeferred(storeID string) {
	s.notifications <- purchasing.Notification{
		Kind:    purchasing.NotificationPurchaseDeferred,
		StoreID: storeID,
	}
}

// Close shuts the notification stream down.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.notifications) })
}

// Initiated returns the store ids passed to InitiatePurchase, in order.
func (s *Store) Initiated() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.initiated))
	copy(out, s.initiated)
	return out
}

// Confirmed returns the store ids passed to ConfirmPendingPurchase, in order.
func (s *Store) Confirmed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.confirmed))
	copy(out, s.confirmed)
	return out
}

// Restores returns how many times Restore was called.
func (s *Store) Restores() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restores
}
