package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	ErrAuthentication ErrorKind = "authentication"
	ErrRateLimit      ErrorKind = "rate-limit"
	ErrInvalidRequest ErrorKind = "invalid-request"
	ErrNotFound       ErrorKind = "not-found"
	ErrServer         ErrorKind = "server-error"
	ErrUnavailable    ErrorKind = "service-unavailable"
	ErrTimeout        ErrorKind = "timeout"
	ErrConnection     ErrorKind = "connection"
	ErrUnknown        ErrorKind = "unknown"
)

// Error is a classified provider failure.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could reasonably succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ErrRateLimit, ErrServer, ErrUnavailable, ErrTimeout, ErrConnection:
		return true
	}
	return false
}

// kindForStatus maps an HTTP status onto an error kind.
func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthentication
	case http.StatusTooManyRequests:
		return ErrRateLimit
	case http.StatusBadRequest:
		return ErrInvalidRequest
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return ErrServer
	case http.StatusServiceUnavailable:
		return ErrUnavailable
	default:
		return ErrUnknown
	}
}

// classifyTransport wraps a failure that happened before any HTTP status
// arrived. Deadline expiry reads as a timeout, everything else as a
// connection problem; the retry loop separately aborts on canceled parents.
func classifyTransport(err error) *Error {
	kind := ErrConnection
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = ErrTimeout
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// asError normalizes any failure into a classified *Error.
func asError(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return classifyTransport(err)
}
