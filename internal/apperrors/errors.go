// internal/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ValidationError is returned for malformed input before any store is contacted.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "validation failed"
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InsufficientInventoryError is returned when a requested allocation exceeds
// what is left of the master quantity.
type InsufficientInventoryError struct {
	VariantID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	if e.VariantID == uuid.Nil {
		return fmt.Sprintf("insufficient inventory: requested %d, available %d", e.Requested, e.Available)
	}
	return fmt.Sprintf("insufficient inventory for variant %s: requested %d, available %d", e.VariantID, e.Requested, e.Available)
}

// StoreAdapterError wraps a failure reported by, or while talking to, a store.
type StoreAdapterError struct {
	StoreID uuid.UUID
	Err     error
}

func (e *StoreAdapterError) Error() string {
	return fmt.Sprintf("store %s: %v", e.StoreID, e.Err)
}

func (e *StoreAdapterError) Unwrap() error {
	return e.Err
}

type TimeoutError struct {
	StoreID uuid.UUID
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("store %s: push timed out after %s", e.StoreID, e.After)
}

// StaleWriteError is returned by the sync tracker when an update would
// overwrite a newer or terminal record.
type StaleWriteError struct {
	ProductID uuid.UUID
	StoreID   uuid.UUID
	Existing  string
	Incoming  string
}

func (e *StaleWriteError) Error() string {
	return fmt.Sprintf("stale sync result for product %s store %s: %s cannot replace %s",
		e.ProductID, e.StoreID, e.Incoming, e.Existing)
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func NewNotFound(resource string, id uuid.UUID) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id.String()}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsInsufficientInventory(err error) bool {
	var target *InsufficientInventoryError
	return errors.As(err, &target)
}

func IsStaleWrite(err error) bool {
	var target *StaleWriteError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
