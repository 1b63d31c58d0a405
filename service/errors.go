// Package service implements the resource layer: uploads, documents,
// sources, notebooks, membership, messages, search and the cross-store
// consistency sweeps. All operations are owner-scoped.
package service

import (
	"errors"
	"fmt"
)

// Error taxonomy. Handlers map these to stable HTTP codes; everything else
// is internal.
var (
	// ErrValidation marks malformed input, disallowed types or sizes out
	// of range.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing resource. Ownership failures use the
	// same error so existence is not leaked.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict marks a unique-constraint violation such as a duplicate
	// upload or duplicate membership.
	ErrConflict = errors.New("resource conflict")

	// ErrRateLimited marks the per-user processing gate rejecting work.
	ErrRateLimited = errors.New("rate limited")

	// ErrExternalUnavailable marks a blob, bus, vector or embedding
	// dependency that failed after retries.
	ErrExternalUnavailable = errors.New("external dependency unavailable")

	// ErrInconsistent marks detected cross-store drift.
	ErrInconsistent = errors.New("cross-store inconsistency")
)

// Wrap attaches a sentinel kind to a descriptive message.
func Wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
