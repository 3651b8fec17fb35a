package booking

import (
	"errors"
	"fmt"
)

// ValidationError marks user-correctable input problems and names the
// offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// PermissionError is returned when the requester lacks book, pre-book,
// or override rights. It is always surfaced, never downgraded.
type PermissionError struct {
	Reason string
}

func (e PermissionError) Error() string {
	return e.Reason
}

// ErrConcurrencyConflict signals that another booking was persisted for
// the same slot between the availability check and the write. The whole
// operation must be retried from the availability check.
var ErrConcurrencyConflict = errors.New("booking raced with a concurrent creation")

// ErrNotFound is returned for missing rooms, reservations, occurrences,
// and blockings.
var ErrNotFound = errors.New("not found")
