// Package services implements the history store: session, stage, and
// interaction persistence plus the timeline assembly used by the API and
// the dashboard.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when a create collides with an existing row.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConcurrentModification is returned when an update would regress a
	// terminal state, which only happens when two writers race.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrHistoryDisabled is returned by read operations when the history
	// store is disabled. Writes silently no-op instead.
	ErrHistoryDisabled = errors.New("history capture is disabled")
)

// ValidationError carries field-specific validation failures so the API can
// report which input was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
