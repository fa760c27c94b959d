/*
errors.go - Centralized error types for the stock ledger

ERROR CATEGORIES:
  1. Client errors - Validation, unknown ids, insufficient stock
  2. Internal errors - Ledger/projection divergence found while costing
  3. Transient errors - Lock contention beyond the retry budget

Corrupt documents are never returned to callers. Stores degrade them to an
empty document and report them through their corruption hook.

USAGE:
  var stockErr *inventory.InsufficientStockError
  if errors.As(err, &stockErr) {
      // stockErr.Available holds what could have been sold
  }
*/
package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrCostingInvariant means the lots disagree with the balance projection.
	// It points at a bug or a lost write, never at bad input.
	ErrCostingInvariant = errors.New("costing invariant violated")

	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrCorruptDocument is reported to corruption hooks only.
	ErrCorruptDocument = errors.New("corrupt document")

	// ErrImmutableTransaction is returned when an update touches anything
	// other than a purchase's Remaining, or raises it.
	ErrImmutableTransaction = errors.New("transaction is immutable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type NotFoundError struct {
	Kind string // "product", "supplier", "payable", "transaction"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type InsufficientStockError struct {
	ProductID   ProductID
	WarehouseID WarehouseID
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s in %s: available %s, requested %s",
		e.ProductID, e.WarehouseID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type CostingInvariantError struct {
	Method      CostingMethod
	ProductID   ProductID
	WarehouseID WarehouseID
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *CostingInvariantError) Error() string {
	return fmt.Sprintf("insufficient stock for %s costing of %s in %s: lots hold %s, requested %s",
		e.Method, e.ProductID, e.WarehouseID, e.Available, e.Requested)
}

func (e *CostingInvariantError) Unwrap() error { return ErrCostingInvariant }

type LockTimeoutError struct {
	Resource string
	Attempts int
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("could not lock %s after %d attempts", e.Resource, e.Attempts)
}

func (e *LockTimeoutError) Unwrap() error { return ErrLockTimeout }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
