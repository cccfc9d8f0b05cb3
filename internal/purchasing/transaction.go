package purchasing

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// TransactionState is the lifecycle state of a purchase transaction.
type TransactionState string

const (
	StateCreated    TransactionState = "created"    // not yet submitted to the store
	StateProcessing TransactionState = "processing" // submitted, awaiting store resolution
	StatePending    TransactionState = "pending"    // store deferred the purchase
	StateSuccessful TransactionState = "successful"
	StateFailed     TransactionState = "failed"
	StateCanceled   TransactionState = "canceled" // user-initiated abort
)

// Terminal reports whether the state admits no further transitions. Pending is
// not terminal: a later store notification may still resolve it.
func (s TransactionState) Terminal() bool {
	return s == StateSuccessful || s == StateFailed || s == StateCanceled
}

// validTransitions is the set of legal state transitions. Terminal states have
// no outgoing edges.
var validTransitions = map[TransactionState][]TransactionState{
	StateCreated:    {StateProcessing},
	StateProcessing: {StatePending, StateSuccessful, StateFailed, StateCanceled},
	StatePending:    {StateSuccessful, StateFailed, StateCanceled},
	StateSuccessful: {},
	StateFailed:     {},
	StateCanceled:   {},
}

func (s TransactionState) canTransition(to TransactionState) bool {
	for _, next := range validTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// FailureReason classifies a store-reported purchase failure.
type FailureReason string

const (
	ReasonUserCancelled         FailureReason = "UserCancelled"
	ReasonDuplicateTransaction  FailureReason = "DuplicateTransaction"
	ReasonReceiptRejected       FailureReason = "ReceiptRejected"
	ReasonPurchasingUnavailable FailureReason = "PurchasingUnavailable"
	ReasonUnknown               FailureReason = "Unknown"
)

// Transaction tracks one purchase attempt for one product. The product is
// shared, not owned: the transaction only reads identity from it, status
// mutation stays with the orchestrator.
type Transaction struct {
	id      string
	product *Product

	mu    sync.Mutex
	state TransactionState
	err   string

	done chan struct{}
}

// NewTransaction creates a transaction in the Created state. An empty id is
// replaced with a generated one.
func NewTransaction(product *Product, id string) *Transaction {
	if id == "" {
		id = uuid.NewString()
	}
	return &Transaction{
		id:      id,
		product: product,
		state:   StateCreated,
		done:    make(chan struct{}),
	}
}

func (t *Transaction) ID() string        { return t.id }
func (t *Transaction) Product() *Product { return t.product }

func (t *Transaction) State() TransactionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error detail, set only for failed transactions.
func (t *Transaction) Err() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed when the transaction reaches a terminal state.
func (t *Transaction) Done() <-chan struct{} {
	return t.done
}

// transition moves the transaction to the target state, recording the error
// detail for failure states. An illegal transition leaves the state unchanged
// and returns an error; the caller decides whether that is an anomaly.
func (t *Transaction) transition(to TransactionState, errDetail string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.state.canTransition(to) {
		return fmt.Errorf("transaction %s: illegal transition %s -> %s", t.id, t.state, to)
	}

	t.state = to
	if to == StateFailed || to == StateCanceled {
		t.err = errDetail
	}
	return nil
}

// markResolved releases waiters. Called exactly once, after the terminal
// transition's events have been dispatched, so that a returned Purchase call
// observes the full event sequence.
func (t *Transaction) markResolved() {
	close(t.done)
}
