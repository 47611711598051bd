package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — referenced record missing; no partial state change.
	ErrNotFound = errors.New("not found")
	// ErrConflict — a concurrent-update race survived the internal retry.
	ErrConflict = errors.New("conflict")
	// ErrValidation — rejected before any write.
	ErrValidation = errors.New("validation failed")
)

// ValidationError reports which field failed validation. It unwraps to
// ErrValidation so callers can match with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
