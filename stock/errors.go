/*
errors.go - Error types for the stock engine

ERROR CATEGORIES:
  1. Validation   - malformed entry or intent, rejected before anything is built
  2. Referential  - intent names a product or warehouse that does not exist
  3. Atomicity    - the store could not commit every entry of a unit (transfer pair)
  4. Store        - the collaborator failed; propagated, never retried here

  The aggregator never returns errors: dangling references in the ledger are
  folded into their own bucket instead (see balance.go).

USAGE:
  if errors.Is(err, stock.ErrUnknownWarehouse) { ... }

  var ve *stock.ValidationError
  if errors.As(err, &ve) {
      for _, d := range ve.Details { ... }
  }
*/
package stock

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalid is matched by every *ValidationError.
	ErrInvalid = errors.New("invalid input")

	ErrUnknownProduct   = errors.New("unknown product")
	ErrUnknownWarehouse = errors.New("unknown warehouse")

	// ErrDuplicateEntry is returned when an entry id is already in the ledger
	// or appears twice in one batch.
	ErrDuplicateEntry = errors.New("duplicate entry id")

	ErrDuplicateProduct   = errors.New("duplicate product id")
	ErrDuplicateWarehouse = errors.New("duplicate warehouse id")
	ErrDuplicateSKU       = errors.New("duplicate sku")

	// ErrAtomicWriteFailed is matched by every *AtomicWriteError.
	ErrAtomicWriteFailed = errors.New("atomic append failed")

	// ErrAtomicityUnavailable is returned when a multi-entry append is asked
	// of a store that cannot commit entries as one unit. Nothing is written.
	ErrAtomicityUnavailable = errors.New("store cannot append entries atomically")

	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// FieldError names one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports every shape problem found in an entry or intent.
type ValidationError struct {
	Message string
	Details []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Details))
	for i, d := range e.Details {
		parts[i] = d.Field + ": " + d.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// validator collects field errors.
type validator struct {
	details []FieldError
}

func (v *validator) check(ok bool, field, message string) {
	if !ok {
		v.details = append(v.details, FieldError{Field: field, Message: message})
	}
}

func (v *validator) err(message string) error {
	if len(v.details) == 0 {
		return nil
	}
	return &ValidationError{Message: message, Details: v.details}
}

// ReferenceError names the dangling id in an intent.
type ReferenceError struct {
	Field string
	ID    string
	Err   error // ErrUnknownProduct or ErrUnknownWarehouse
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%v: %s %q", e.Err, e.Field, e.ID)
}

func (e *ReferenceError) Unwrap() error { return e.Err }

// AtomicWriteError is the single failure reported when a multi-entry unit
// could not be committed. It matches both ErrAtomicWriteFailed and the
// store's cause.
type AtomicWriteError struct {
	Reference string
	Entries   int
	Err       error
}

func (e *AtomicWriteError) Error() string {
	return fmt.Sprintf("atomic append of %d entries (ref %q) failed: %v", e.Entries, e.Reference, e.Err)
}

func (e *AtomicWriteError) Unwrap() []error { return []error{ErrAtomicWriteFailed, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalid) || IsNotFound(err)
}

// IsNotFound returns true if the error names a missing catalog record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownProduct) || errors.Is(err, ErrUnknownWarehouse)
}

// IsConflict returns true if the write collided with existing data.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateEntry) ||
		errors.Is(err, ErrDuplicateProduct) ||
		errors.Is(err, ErrDuplicateWarehouse) ||
		errors.Is(err, ErrDuplicateSKU)
}
