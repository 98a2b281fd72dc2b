// Package services implements the schedule, notification, and inventory
// business logic of the medication tracker. This file centralizes the
// service-level error values and the validation error type so they can be
// consistently returned by service methods and checked by callers.
//
// Translation into HTTP status codes is performed at the handler layer.
package services

import (
	"errors"
	"fmt"
)

// Not-found errors. Operations on a missing record fail with one of these
// rather than silently no-opping.
var (
	// ErrMedicationNotFound indicates that the requested medication does
	// not exist (or was hard-deleted).
	ErrMedicationNotFound = errors.New("medication not found")

	// ErrDoseNotFound indicates that the requested dose does not exist or
	// does not belong to the given medication.
	ErrDoseNotFound = errors.New("dose not found")

	// ErrSkipDateNotFound indicates that the requested skip date does not
	// exist or does not belong to the given medication.
	ErrSkipDateNotFound = errors.New("skip date not found")

	// ErrNotificationNotFound indicates that the requested notification
	// does not exist.
	ErrNotificationNotFound = errors.New("notification not found")
)

// ValidationError reports invalid caller input (malformed dates,
// out-of-range rule parameters, missing inventory input). Validation
// always fails before any write, so a ValidationError is never partially
// applied.
type ValidationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string { return e.Reason }

// Validationf builds a ValidationError with a formatted reason.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
