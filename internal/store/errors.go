package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a task, account or streak does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyCompleted is returned when completing a task that is already completed.
	ErrAlreadyCompleted = errors.New("task is already completed")

	// ErrNotCompleted is returned when uncompleting a task that is not completed.
	ErrNotCompleted = errors.New("task is not completed")
)

// ValidationError reports a missing or malformed input field.
// It is raised before any storage access is attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return e.Message
}

// Required returns a ValidationError for a missing field.
func Required(field string) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf("'%s' is required", field)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is an idempotency guard (already completed
// or not completed) rather than a real failure.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyCompleted) || errors.Is(err, ErrNotCompleted)
}
