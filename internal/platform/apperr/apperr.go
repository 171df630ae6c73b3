// Package apperr defines the error kinds shared by the domain services and
// the HTTP layer. Expected business failures are returned as *Error values;
// anything else is treated as Internal.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can map it without inspecting
// internals.
type Kind string

const (
	KindInvalidArgument    Kind = "INVALID_ARGUMENT"
	KindUnauthenticated    Kind = "UNAUTHENTICATED"
	KindForbidden          Kind = "FORBIDDEN"
	KindNotFound           Kind = "NOT_FOUND"
	KindInvalidReference   Kind = "INVALID_REFERENCE"
	KindInvalidState       Kind = "INVALID_STATE"
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"
	KindConflict           Kind = "CONFLICT"
	KindInternal           Kind = "INTERNAL"
)

// Error is the failure variant of an operation result.
type Error struct {
	Kind    Kind   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, apperr.ErrConflict) works for any
// conflict, whatever its message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause that is logged but never rendered to clients.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Sentinels usable with errors.Is. They carry no message so they match any
// error of the same kind.
var (
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidReference   = &Error{Kind: KindInvalidReference}
	ErrInvalidState       = &Error{Kind: KindInvalidState}
	ErrPreconditionFailed = &Error{Kind: KindPreconditionFailed}
	ErrConflict           = &Error{Kind: KindConflict}
)

func InvalidArgument(msg string) *Error    { return New(KindInvalidArgument, msg) }
func Unauthenticated(msg string) *Error    { return New(KindUnauthenticated, msg) }
func NotFound(msg string) *Error           { return New(KindNotFound, msg) }
func InvalidReference(msg string) *Error   { return New(KindInvalidReference, msg) }
func InvalidState(msg string) *Error       { return New(KindInvalidState, msg) }
func PreconditionFailed(msg string) *Error { return New(KindPreconditionFailed, msg) }
func Conflict(msg string) *Error           { return New(KindConflict, msg) }

// Internal wraps an unexpected failure. The message shown to clients is
// always generic.
func Internal(err error) *Error {
	return Wrap(KindInternal, "internal server error", err)
}

// KindOf reports the kind of err. Errors that are not *Error are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-safe message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal server error"
}

// HTTPStatus maps a kind to the response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidReference:
		return http.StatusUnprocessableEntity
	case KindInvalidState, KindConflict:
		return http.StatusConflict
	case KindPreconditionFailed:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}
