package purchasing

import (
	"fmt"
	"sync"
)

// Registry tracks in-flight transactions keyed by store id, because store
// notifications carry only the store id. Entries are exactly the set of
// non-terminal transactions; it also remembers the most recently completed
// transaction per store id so duplicate notifications can be told apart from
// legitimate store-initiated completions.
type Registry struct {
	mu        sync.Mutex
	active    map[string]*Transaction
	completed map[string]*Transaction
}

func NewRegistry() *Registry {
	return &Registry{
		active:    make(map[string]*Transaction),
		completed: make(map[string]*Transaction),
	}
}

// Begin registers a transaction as the active one for its product's store id.
// A second active transaction for the same store id is a conflict.
func (r *Registry) Begin(t *Transaction) error {
	storeID := t.Product().StoreID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.active[storeID]; ok {
		return fmt.Errorf("%w: store id %q held by transaction %s", ErrConflict, storeID, existing.ID())
	}

	r.active[storeID] = t
	delete(r.completed, storeID)
	return nil
}

// FindByStoreID returns the active transaction for a store id.
func (r *Registry) FindByStoreID(storeID string) (*Transaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.active[storeID]
	return t, ok
}

// Complete removes a transaction from the active set. Completing an absent
// transaction is an error, not a no-op: duplicate store notifications are
// expected and must be detected by the caller, never silently ignored.
func (r *Registry) Complete(t *Transaction) error {
	storeID := t.Product().StoreID()

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.active[storeID]
	if !ok || current != t {
		return fmt.Errorf("%w: no active transaction for store id %q", ErrNotFound, storeID)
	}

	delete(r.active, storeID)
	r.completed[storeID] = t
	return nil
}

// LastCompleted returns the most recently completed transaction for a store
// id, if any finished since the last Begin on that store id.
func (r *Registry) LastCompleted(storeID string) (*Transaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.completed[storeID]
	return t, ok
}

// ActiveCount returns the number of in-flight transactions.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
