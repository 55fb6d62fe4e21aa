/*
errors.go - Centralized error types for the package ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify with errors.Is against the sentinels below; the
  structured errors carry the details a caller needs to react.

ERROR CATEGORIES:
  1. Validation errors - malformed input, rejected before any mutation
  2. Business rejections - insufficient balance/sittings, invalid state
  3. Concurrency - optimistic-lock collisions, surfaced as Conflict
  4. Store errors - any failure from the persistence layer

USAGE:
  _, err := engine.RedeemValue(ctx, req)
  if errors.Is(err, generic.ErrInsufficientBalance) {
      var ib *generic.InsufficientBalanceError
      errors.As(err, &ib)
      ...
  }

SEE ALSO:
  - ledger/engine.go: Produces most of these
  - store/*: Wrap driver failures in StorageError
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed caller input (mobile number,
	// empty customer name, non-positive quantity or price).
	ErrValidation = errors.New("validation failed")

	// ErrInvalidArgument is returned by the template catalog for
	// non-positive values or sitting counts.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when a package, template, record or snapshot
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientBalance is returned when a redemption's grand total
	// exceeds the remaining service value.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientSittings is returned when no sittings remain.
	ErrInsufficientSittings = errors.New("insufficient sittings")

	// ErrInvalidState is returned when an operation does not apply to the
	// package in its current state (wrong kind, reserved sitting slot).
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict is returned once optimistic-concurrency retries are exhausted.
	ErrConflict = errors.New("conflict")

	// ErrStorage wraps any failure of the underlying store.
	ErrStorage = errors.New("storage error")

	// ErrConcurrentModification is returned by stores when a compare-and-swap
	// update finds a different version than expected. The engine retries on it.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicateRecord is returned when a write-once row already exists.
	ErrDuplicateRecord = errors.New("duplicate record")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes one rejected input field. Index is the
// zero-based line item position, or -1 when the field is not a line item.
type ValidationError struct {
	Field   string
	Index   int
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Index: -1, Message: message}
}

func NewItemValidationError(index int, field, message string) *ValidationError {
	return &ValidationError{Field: field, Index: index, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("validation failed: item %d: %s %s", e.Index, e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvalidArgumentError is the catalog's equivalent of ValidationError.
type InvalidArgumentError struct {
	Field   string
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument: %s %s", e.Field, e.Message)
}

func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string // "package", "template", "record", "snapshot"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	PackageID PackageID
	Available decimal.Decimal
	Requested decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on %s: available %s, requested %s, shortfall %s",
		e.PackageID, e.Available.StringFixed(MoneyPlaces), e.Requested.StringFixed(MoneyPlaces),
		e.Shortfall.StringFixed(MoneyPlaces))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InsufficientSittingsError is returned when every sitting has been used.
type InsufficientSittingsError struct {
	PackageID PackageID
	Total     int
	Used      int
}

func (e *InsufficientSittingsError) Error() string {
	return fmt.Sprintf("no sittings remaining on %s: %d of %d used", e.PackageID, e.Used, e.Total)
}

func (e *InsufficientSittingsError) Unwrap() error { return ErrInsufficientSittings }

// InvalidStateError explains why the package cannot accept the operation.
type InvalidStateError struct {
	PackageID PackageID
	Reason    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state for %s: %s", e.PackageID, e.Reason)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// ConflictError is returned after Attempts read-validate-write cycles all
// lost the race for the same package row.
type ConflictError struct {
	PackageID PackageID
	Attempts  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: concurrent updates after %d attempts, re-fetch and resubmit",
		e.PackageID, e.Attempts)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// StorageError wraps a failure from the persistence layer. Both ErrStorage
// and the underlying error are reachable through errors.Is.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to caller input or a
// business-rule rejection.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientSittings) ||
		errors.Is(err, ErrInvalidState)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
