package transport

import (
	"errors"
	"fmt"
)

// TransportError is a network, timeout, parse or server-side failure.
// The request may or may not have reached the backend.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s %s): %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RejectionError means the backend answered and declined the request with a
// 4xx status, e.g. accepting an already accepted bid or bidding while busy.
type RejectionError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *RejectionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rejected (%d) %s %s", e.StatusCode, e.Method, e.Path)
	}
	return fmt.Sprintf("rejected (%d): %s", e.StatusCode, e.Message)
}

// IsRejection reports whether err is, or wraps, a *RejectionError.
func IsRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}

// IsTransport reports whether err is, or wraps, a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// AsRejection returns the wrapped *RejectionError, if any.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	ok := errors.As(err, &rej)
	return rej, ok
}
