package billing

import (
	"errors"
	"fmt"

	"saascore/access"
	"saascore/ledger"
)

// Kind classifies a billing failure for callers.
type Kind string

const (
	KindForbidden        Kind = "forbidden"
	KindNotFound         Kind = "not_found"
	KindInvalidInput     Kind = "invalid_input"
	KindConflict         Kind = "conflict"
	KindStoreUnavailable Kind = "store_unavailable"
)

// Sentinel errors, one per kind. Match with errors.Is.
var (
	ErrForbidden        = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrConflict         = &Error{Kind: KindConflict, Message: "conflict"}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable, Message: "store unavailable"}
)

// Error carries a kind and a message safe to show the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("billing: %s: %v", e.Message, e.Err)
	}
	return "billing: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) holds
// for every conflict regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func forbidden() *Error {
	return &Error{Kind: KindForbidden, Message: "you do not have access to this resource"}
}

func notFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func invalid(format string, args ...interface{}) *Error {
	return newError(KindInvalidInput, format, args...)
}

func conflict(format string, args ...interface{}) *Error {
	return newError(KindConflict, format, args...)
}

// KindOf returns err's kind, or "" for nil and non-billing errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether the caller may retry without changing the request.
func IsRetryable(err error) bool {
	return KindOf(err) == KindStoreUnavailable
}

// classify maps store and guard errors onto billing kinds. what names the
// record for not-found messages. Billing errors pass through unchanged.
func classify(err error, what string) error {
	var e *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &e):
		return err
	case errors.Is(err, access.ErrDenied):
		return forbidden()
	case errors.Is(err, ledger.ErrNotFound):
		return notFound(what)
	case errors.Is(err, ledger.ErrStale):
		return &Error{Kind: KindConflict, Message: what + " was changed by another request", Err: err}
	case errors.Is(err, ledger.ErrDuplicate):
		return &Error{Kind: KindConflict, Message: what + " already exists", Err: err}
	default:
		return &Error{Kind: KindStoreUnavailable, Message: "the billing store is unavailable, please retry", Err: err}
	}
}

// outcome is the metrics label for err.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
