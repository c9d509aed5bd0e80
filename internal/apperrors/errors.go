// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrAuth              = errors.New("not authenticated")
	ErrUnavailable       = errors.New("remote unavailable")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrImport            = errors.New("import failed")
	ErrInternal          = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "pipeline", "geometry")
	Resource string // For not found/conflict (e.g., "job")
	Op       string // Operation that failed (e.g., "remote.download")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, id, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Resource: resource,
	}
}

// Auth creates an authentication error.
func Auth(message string) error {
	return &Error{
		Sentinel: ErrAuth,
		Message:  message,
	}
}

// Unavailable creates a transient remote/network error.
// Callers are expected to retry with backoff rather than surface it immediately.
func Unavailable(op string, cause error) error {
	return &Error{
		Sentinel: ErrUnavailable,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// InvalidTransition creates an error for a rejected job state change.
// These indicate a defect in the caller, not a user or network condition.
func InvalidTransition(jobID, from, to string) error {
	return &Error{
		Sentinel: ErrInvalidTransition,
		Message:  fmt.Sprintf("job %s: cannot transition from %s to %s", jobID, from, to),
		Resource: "job",
	}
}

// Import creates an error for a failed result download or layer import.
// The job stays succeeded; the import can be retried manually.
func Import(op string, cause error) error {
	return &Error{
		Sentinel: ErrImport,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
