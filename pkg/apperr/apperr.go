// Package apperr defines the error taxonomy shared by handlers and services.
// Every user-facing failure is one of a small set of kinds, each mapping to a
// single HTTP status.
package apperr

import "errors"

// Kind classifies an error for response mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindUnavailable
)

// Error carries a kind and a user-visible message. Wrapped causes stay
// internal; only Msg is ever surfaced in a response.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes sentinel comparison work across wrapping: two apperr values match
// when kind and message match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Msg == t.Msg
}

// Invalid returns a validation error (HTTP 400).
func Invalid(msg string) *Error { return &Error{Kind: KindInvalid, Msg: msg} }

// Unauthorized returns an authentication error (HTTP 401).
func Unauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Msg: msg} }

// Forbidden returns a permission error (HTTP 403).
func Forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Msg: msg} }

// NotFound returns a not-found error (HTTP 404).
func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Msg: msg} }

// Conflict returns a conflict error (HTTP 409).
func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Msg: msg} }

// Unavailable returns a service-unavailable error (HTTP 503).
func Unavailable(msg string) *Error { return &Error{Kind: KindUnavailable, Msg: msg} }

// Wrap attaches a cause to a copy of e, preserving kind and message.
func Wrap(e *Error, cause error) *Error {
	return &Error{Kind: e.Kind, Msg: e.Msg, Err: cause}
}

// KindOf extracts the kind from err, defaulting to KindInternal for plain
// errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-visible message for err, or fallback for plain
// errors whose text must not leak.
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return fallback
}
