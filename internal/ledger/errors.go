package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested trade or snapshot does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable marks operations skipped because no store is configured.
	ErrStoreUnavailable = errors.New("ledger store unavailable")
	// ErrInvalidTrade is returned for trades that cannot be recorded as given.
	ErrInvalidTrade = errors.New("invalid trade")
	// ErrNegativeRemaining guards the lot remainder against going below zero.
	ErrNegativeRemaining = errors.New("remaining quantity cannot be negative")
)

// SchemaError reports a failure to create the ledger schema.
// Writes cannot proceed after it; reads degrade to empty results.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("ledger schema: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
