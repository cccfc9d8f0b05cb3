package purchasing

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when an operation runs before a
	// successful Initialize.
	ErrNotInitialized = errors.New("purchase service is not initialized")

	// ErrNotFound is returned for unknown product ids.
	ErrNotFound = errors.New("product not found")

	// ErrConflict is returned when a purchase is requested for a product
	// that already has an active transaction.
	ErrConflict = errors.New("active transaction already exists for product")

	// ErrLifecycle is returned when a suspended call is aborted because the
	// hosting process is shutting down.
	ErrLifecycle = errors.New("process is shutting down")
)

// InitializationError reports that the store adapter failed to come up. The
// session stays un-initialized and all further operations fail with
// ErrNotInitialized.
type InitializationError struct {
	Reason string
	Err    error
}

func (e *InitializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store initialization failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("store initialization failed: %s", e.Reason)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}
