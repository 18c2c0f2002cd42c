package errors

import (
	"errors"
	"fmt"
)

// Common error types used across the stealflow library

var (
	// ErrClosed indicates that an operation was attempted on a closed resource
	ErrClosed = errors.New("resource is closed")

	// ErrCapacityExceeded indicates that a capacity limit was exceeded
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidCapacity indicates a buffer capacity that is zero, negative
	// or not a power of two. It is a configuration error.
	ErrInvalidCapacity = fmt.Errorf("%w: capacity must be a positive power of two", ErrInvalidConfiguration)
)

// ValidationError describes a rejected configuration value.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string

	// cause overrides the default ErrInvalidConfiguration sentinel.
	cause error
}

// NewValidationError creates a ValidationError for module.field.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint attaches a remediation hint and returns the same error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

// WithCause makes the error unwrap to cause instead of ErrInvalidConfiguration.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap returns the sentinel this error classifies as.
func (e *ValidationError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return ErrInvalidConfiguration
}

// OperationError wraps a failure of a named operation.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// NewOperationError creates an OperationError for module.operation.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{
		Module:    module,
		Operation: operation,
		Cause:     cause,
	}
}

// WithContext attaches free-form detail and returns the same error for chaining.
func (e *OperationError) WithContext(context string) *OperationError {
	e.Context = context
	return e
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// IsFatal returns true if the error means the operation that produced it
// cannot succeed by trying again with the same inputs.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) || errors.Is(err, ErrCapacityExceeded)
}
