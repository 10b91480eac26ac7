package apperrors

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the contact manager, the signal ledger and the stores.
// Callers match them with errors.Is; every one of them is recoverable.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrPermissionDenied = errors.New("permission denied")
	ErrSelfReference    = errors.New("self reference")
	ErrValidation       = errors.New("validation failed")
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailInUse         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("weak password")
	ErrUnauthenticated    = errors.New("unauthenticated")
)

// Wrap attaches a human readable detail to one of the kinds above.
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Unavailable marks a backend failure as ErrStoreUnavailable while keeping the cause.
func Unavailable(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, cause)
}

// UserMessage returns a message that is safe to show to an end user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Sign in failed. Check your email and password."
	case errors.Is(err, ErrEmailInUse):
		return "This email is already registered."
	case errors.Is(err, ErrWeakPassword):
		return "Password is too weak, use at least 6 characters."
	case errors.Is(err, ErrStoreUnavailable):
		return "The service is temporarily unavailable, please try again."
	default:
		return err.Error()
	}
}
