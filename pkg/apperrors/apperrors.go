// Package apperrors defines the domain error taxonomy shared by all
// services. Handlers translate these into HTTP responses; services never
// format HTTP-specific payloads themselves.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthorized is returned when the acting user is not a party to
	// the resource being mutated.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInsufficientBalance is returned when a withdrawal exceeds the
	// wallet's currency balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// NotFoundError reports a missing entity by name.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Entity)
}

// NewNotFound builds a NotFoundError for the named entity.
func NewNotFound(entity string) *NotFoundError {
	return &NotFoundError{Entity: entity}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// InsufficientCreditsError carries the required and available counts so the
// caller can surface a corrective action (add funds).
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// InvalidTransitionError identifies the disallowed state pair.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition booking from %s to %s", e.From, e.To)
}

// ValidationError reports malformed input detected inside a service,
// beyond what request binding already rejected.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidation builds a ValidationError with a formatted message.
func NewValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
