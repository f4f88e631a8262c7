package authz

import (
	"errors"
	"fmt"
)

// Sentinel errors for the authorization engine. Handlers map these onto HTTP
// status codes; everything else is treated as a store failure.
var (
	// ErrUnauthorized indicates no valid session exists.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates a tenant mismatch or insufficient permission.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates a role, assignment, or object is absent.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s is required", e.Field)
}

// NewValidationError creates a validation error for a field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StoreError wraps a persistence-layer failure. The wrapped error carries the
// full detail for logs; callers in production only ever see a generic message.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err as a store failure for the named operation.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

// IsNotFound reports whether err indicates an absent entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized reports whether err indicates a missing session.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsForbidden reports whether err indicates denied tenant or permission.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStoreError reports whether err is a persistence failure.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
