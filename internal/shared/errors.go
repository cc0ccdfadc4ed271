package shared

import (
	"errors"
	"fmt"
)

// Error kinds surfaced at the request boundary.
var (
	// ErrInvalidCredentials indicates login failure. It never says which half was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates a missing, forged or expired session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrStaleSession indicates a valid session superseded by a password change.
	ErrStaleSession = errors.New("stale session")
	// ErrInvalidToken indicates a token that failed verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrForbidden indicates the caller lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrUserNotFound indicates no user matched the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailDelivery indicates the mail collaborator could not deliver a message.
	ErrEmailDelivery = errors.New("email delivery failed")
	// ErrValidation indicates malformed client input.
	ErrValidation = errors.New("validation failed")
)

// Error pairs an error kind with a message that is safe to return to clients.
type Error struct {
	Kind    error
	Message string
	Err     error
}

// NewError builds an Error of the given kind.
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError builds an Error of the given kind carrying the underlying cause.
func WrapError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// UserSafeMessage returns the client-facing message carried by err, or a
// generic message when err carries none.
func UserSafeMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "Something went wrong. Please try again later."
}
