// Package apperr classifies failures into the few kinds a user can act on.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind is the user-facing category of a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthentication
	KindInsufficientFunds
	KindInvalidParameter
	KindRateLimited
	KindTransient
	KindStateExpired
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindInvalidParameter:
		return "invalid_parameter"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindStateExpired:
		return "state_expired"
	default:
		return "unknown"
	}
}

// DefaultHint is the next step shown when an error carries no specific hint.
func (k Kind) DefaultHint() string {
	switch k {
	case KindAuthentication:
		return "Check your credentials. Use /start to re-create them if needed."
	case KindInsufficientFunds:
		return "Deposit funds with /deposit or move them with /transfer."
	case KindInvalidParameter:
		return "Adjust the value and try again."
	case KindRateLimited:
		return "Wait a moment and retry."
	case KindTransient:
		return "The exchange is unreachable right now. Try again shortly."
	case KindStateExpired:
		return "Please restart the flow."
	default:
		return "Try again or use /cancel to start over."
	}
}

// Error is a classified failure. Msg is safe to show to users; Err holds
// the raw cause and is only meant for logs.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Hint string
	Code int
	Err  error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// NextStep returns the hint, falling back to the kind default.
func (e *Error) NextStep() string {
	if e.Hint != "" {
		return e.Hint
	}
	return e.Kind.DefaultHint()
}

// New creates a classified error without a cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(err error, kind Kind, op, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// WithHint returns a copy of e with the hint set.
func (e *Error) WithHint(hint string) *Error {
	c := *e
	c.Hint = hint
	return &c
}

// As extracts the classified error from a chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err. Unclassified timeouts and network
// errors count as transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether an idempotent call may be repeated
// automatically. Only transient failures qualify.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// Transient wraps a transport failure.
func Transient(op string, err error) error {
	return Wrap(err, KindTransient, op, "network error")
}

// Invalid builds an InvalidParameter error.
func Invalid(op, format string, args ...any) *Error {
	return New(KindInvalidParameter, op, fmt.Sprintf(format, args...))
}
