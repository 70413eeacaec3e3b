package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned when the gateway cannot be reached, times out
	// or fails on its side. The call is safe to retry.
	ErrUnavailable = errors.New("payment service temporarily unavailable")

	// ErrRejected is returned when the gateway gives a definitive non-success answer.
	// The attempt must not be retried as is.
	ErrRejected = errors.New("payment gateway rejected the request")
)

// Error describes a failed gateway call.
// Message holds only the gateway's human-readable message, never the raw body.
type Error struct {
	Kind       error
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if errors.Is(e.Kind, ErrRejected) && e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.Error()
}

// Is reports whether target is the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying transport error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

func unavailable(op string, status int, err error) *Error {
	return &Error{Kind: ErrUnavailable, Op: op, StatusCode: status, Err: err}
}

func rejected(op string, status int, message string) *Error {
	return &Error{Kind: ErrRejected, Op: op, StatusCode: status, Message: message}
}
