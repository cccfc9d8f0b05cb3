package purchasing

import (
	"sync"

	"purchase-api/pkg/logging"
)

// EventType names a purchase lifecycle event.
type EventType string

const (
	EventTransactionBegin     EventType = "transaction_begin"
	EventTransactionPending   EventType = "transaction_pending"
	EventTransactionSuccess   EventType = "transaction_success"
	EventTransactionCanceled  EventType = "transaction_canceled"
	EventTransactionFailed    EventType = "transaction_failed"
	EventTransactionCompleted EventType = "transaction_completed"
	EventProductPurchased     EventType = "product_purchased"
)

// Event is one lifecycle notification. Transaction is nil for
// product_purchased events raised by store-initiated completions.
type Event struct {
	Type        EventType
	Transaction *Transaction
	Product     *Product
}

// Dispatcher fans lifecycle events out to subscribers, synchronously and in
// subscription order, on whichever goroutine triggered the resolution. A
// panicking subscriber is reported and does not prevent delivery to the rest.
type Dispatcher struct {
	mu   sync.RWMutex
	subs []func(Event)
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe appends a subscriber. Subscribers cannot be removed; the dispatcher
// lives for the session like the catalog does.
func (d *Dispatcher) Subscribe(fn func(Event)) {
	d.mu.Lock()
	d.subs = append(d.subs, fn)
	d.mu.Unlock()
}

func (d *Dispatcher) publish(e Event) {
	d.mu.RLock()
	subs := make([]func(Event), len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	for _, fn := range subs {
		d.deliver(fn, e)
	}
}

func (d *Dispatcher) deliver(fn func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("event subscriber panicked on %s: %v", e.Type, r)
		}
	}()
	fn(e)
}
