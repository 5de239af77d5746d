package model

import "fmt"

// Kind classifies a client-visible error so callers can branch on retry
// policy without string-matching error text.
type Kind string

const (
	KindServerConfiguration Kind = "server_configuration"
	KindAuthentication      Kind = "authentication"
	KindProtocolError       Kind = "protocol_error"
	KindConnectionLost      Kind = "connection_lost"
	KindServerUnavailable   Kind = "server_unavailable"
	KindTimeout             Kind = "timeout"
	KindDataValidation      Kind = "data_validation"
	KindGameState           Kind = "game_state"
)

// Retryable reports whether a session or pool should attempt a reconnect /
// retry after an error of this kind, per the retry-policy column of the
// specification's error table. Only transient, connection-layer failures
// are retryable; configuration, auth, protocol, and validation errors are
// not, since retrying them cannot change the outcome.
func (k Kind) Retryable() bool {
	switch k {
	case KindConnectionLost, KindServerUnavailable, KindTimeout:
		return true
	default:
		return false
	}
}

// Error is the error type returned by every exported operation in this
// module. Op names the failing operation in "package.Func" or
// "component.field" form; Err is the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether this error's Kind is retryable.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Kind.Retryable()
}

// AsError extracts a *Error from err by following its single-error Unwrap
// chain, returning nil, false if that chain holds none. Errors joined with
// errors.Join (Unwrap() []error) are not searched.
func AsError(err error) (*Error, bool) {
	var e *Error
	if err == nil {
		return nil, false
	}
	if ce, ok := err.(*Error); ok {
		return ce, true
	}
	type unwrapper interface{ Unwrap() error }
	for u, ok := err.(unwrapper); ok; u, ok = err.(unwrapper) {
		err = u.Unwrap()
		if ce, ok := err.(*Error); ok {
			e = ce
			return e, true
		}
	}
	return nil, false
}
