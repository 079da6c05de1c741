// Package errors provides the structured error taxonomy used on every
// network and validation path: timeouts, unreachable hosts, rejected
// credentials, client-side validation failures, and server errors.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorType categorizes an error for handling and reporting decisions.
type ErrorType string

const (
	// TypeTimeout indicates an outbound call exceeded its deadline.
	TypeTimeout ErrorType = "timeout"
	// TypeUnreachable indicates the host could not be reached at all.
	TypeUnreachable ErrorType = "unreachable"
	// TypeAuth indicates the server rejected the presented credential.
	TypeAuth ErrorType = "auth"
	// TypeValidation indicates client-side input validation failed
	// before any network call was made.
	TypeValidation ErrorType = "validation"
	// TypeServer indicates a non-2xx response that is not an auth rejection.
	TypeServer ErrorType = "server"
)

// Error is a structured error with type, message, and optional context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds a context field to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Timeout creates a network timeout error.
func Timeout(message string, cause error) *Error {
	return &Error{Type: TypeTimeout, Message: message, Cause: cause}
}

// Unreachable creates a network unreachable error.
func Unreachable(message string, cause error) *Error {
	return &Error{Type: TypeUnreachable, Message: message, Cause: cause}
}

// AuthRejected creates an authentication rejection error.
func AuthRejected(message string) *Error {
	return &Error{Type: TypeAuth, Message: message}
}

// Validation creates a client-side validation error. These never reach
// the network layer.
func Validation(message string) *Error {
	return &Error{Type: TypeValidation, Message: message}
}

// Server creates a non-2xx server error.
func Server(message string, status int) *Error {
	return (&Error{Type: TypeServer, Message: message}).WithContext("status", status)
}

// TypeOf extracts the ErrorType of err, or "" if err is not structured.
func TypeOf(err error) ErrorType {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Type
	}
	return ""
}

// IsValidation reports whether err is a client-side validation failure.
func IsValidation(err error) bool { return TypeOf(err) == TypeValidation }

// IsAuth reports whether err is an authentication rejection.
func IsAuth(err error) bool { return TypeOf(err) == TypeAuth }

// IsTimeout reports whether err is a network timeout.
func IsTimeout(err error) bool { return TypeOf(err) == TypeTimeout }

// FromTransport classifies a transport-level error from net/http into
// the taxonomy. Context deadline expiry and net.Error timeouts map to
// TypeTimeout, everything else to TypeUnreachable.
func FromTransport(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout(op, err)
	}
	return Unreachable(op, err)
}

// FromStatus classifies a non-2xx HTTP status into the taxonomy.
func FromStatus(op string, status int) *Error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return AuthRejected(op).WithContext("status", status)
	}
	return Server(op, status)
}
