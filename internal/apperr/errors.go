// Package apperr defines the error taxonomy every entry point normalizes to
// before anything reaches a client.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for rendering.
type Kind int

const (
	// KindServer is an unexpected store, signing or entropy failure.
	KindServer Kind = iota
	// KindValidation is malformed or missing input; the message is shown as-is.
	KindValidation
	// KindAuthentication covers bad credentials and rejected tokens. The
	// message never says which check failed.
	KindAuthentication
	// KindTwoFactorRequired is a structured challenge, not a failure.
	KindTwoFactorRequired
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindTwoFactorRequired:
		return "two_factor_required"
	default:
		return "server"
	}
}

const (
	defaultAuthMessage = "Invalid or expired session"
	serverMessage      = "Internal error"
)

// Error is the single error type handed to transport code.
type Error struct {
	Kind      Kind
	Message   string
	Providers []int
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed or missing input.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Authentication reports a credential or token failure. An empty message
// falls back to a generic one.
func Authentication(message string) *Error {
	if message == "" {
		message = defaultAuthMessage
	}
	return &Error{Kind: KindAuthentication, Message: message}
}

// TwoFactorRequired asks the client to retry with a one-time code from one of
// the listed providers.
func TwoFactorRequired(providers ...int) *Error {
	return &Error{Kind: KindTwoFactorRequired, Message: "Two factor required.", Providers: providers}
}

// Server wraps an unexpected failure. The cause is kept for logging only.
func Server(err error) *Error {
	return &Error{Kind: KindServer, Message: serverMessage, Err: err}
}

// From normalizes any error into an *Error; unknown errors become server errors.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Server(err)
}

// IsKind reports whether err normalizes to the given kind.
func IsKind(err error, kind Kind) bool {
	e := From(err)
	return e != nil && e.Kind == kind
}
