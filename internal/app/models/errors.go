package models

import (
	"errors"
	"fmt"
)

// Domain specific errors.
var (
	// ErrAlreadyParticipant is returned by Join when the user already has
	// an active participation row for the adventure. It is the only domain
	// error that crosses the component boundary; every other "missing
	// entity" case degrades to an empty result or a false/no-op instead.
	ErrAlreadyParticipant = errors.New("user is already an active participant")

	// ErrForbidden is returned when a mutation is attempted by someone
	// other than the adventure's creator.
	ErrForbidden = errors.New("action forbidden")
)

// ValidationError reports rejected caller input before any domain logic
// runs.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
