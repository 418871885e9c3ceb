package common

import (
	"errors"
	"fmt"
)

// Domain errors shared by the stores, the services and the HTTP layer.
var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTooLarge           = errors.New("payload too large")
)

// ValidationError reports a rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Invalid builds a ValidationError for field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Unavailable wraps an infrastructure failure so callers can match ErrStoreUnavailable
// while logs keep the original cause.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
