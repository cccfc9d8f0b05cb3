package purchasing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBeginAndFind(t *testing.T) {
	p := testProduct(t, Consumable)
	r := NewRegistry()

	tx := NewTransaction(p, "")
	require.NoError(t, r.Begin(tx))
	assert.Equal(t, 1, r.ActiveCount())

	found, ok := r.FindByStoreID(p.StoreID())
	require.True(t, ok)
	assert.Same(t, tx, found)

	_, ok = r.FindByStoreID("other")
	assert.False(t, ok)
}

func TestRegistryRejectsSecondActiveTransaction(t *testing.T) {
	p := testProduct(t, Consumable)
	r := NewRegistry()

	require.NoError(t, r.Begin(NewTransaction(p, "first")))

	err := r.Begin(NewTransaction(p, "second"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, r.ActiveCount())
}

func TestRegistryComplete(t *testing.T) {
	p := testProduct(t, Consumable)
	r := NewRegistry()

	tx := NewTransaction(p, "")
	require.NoError(t, r.Begin(tx))
	require.NoError(t, r.Complete(tx))
	assert.Equal(t, 0, r.ActiveCount())

	// Duplicate completion must be detected, not ignored.
	err := r.Complete(tx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	prev, ok := r.LastCompleted(p.StoreID())
	require.True(t, ok)
	assert.Same(t, tx, prev)
}

func TestRegistryCompleteRequiresMatchingTransaction(t *testing.T) {
	p := testProduct(t, Consumable)
	r := NewRegistry()

	active := NewTransaction(p, "active")
	require.NoError(t, r.Begin(active))

	stranger := NewTransaction(p, "stranger")
	err := r.Complete(stranger)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, r.ActiveCount(), "the active transaction stays registered")
}

func TestRegistryBeginClearsCompletedMarker(t *testing.T) {
	p := testProduct(t, Consumable)
	r := NewRegistry()

	first := NewTransaction(p, "first")
	require.NoError(t, r.Begin(first))
	require.NoError(t, r.Complete(first))

	_, ok := r.LastCompleted(p.StoreID())
	require.True(t, ok)

	// A new purchase on the same store id starts a fresh dedupe window.
	require.NoError(t, r.Begin(NewTransaction(p, "second")))
	_, ok = r.LastCompleted(p.StoreID())
	assert.False(t, ok)
}
