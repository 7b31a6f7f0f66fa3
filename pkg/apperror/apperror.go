package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the HTTP layer can pick a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindConflict
	KindInvalidState
	KindInsufficientStock
	KindAmountExceedsBalance
	KindInvalidTransition
	KindInvalid
)

var kindNames = map[Kind]string{
	KindInternal:             "internal",
	KindNotFound:             "not_found",
	KindUnauthorized:         "unauthorized",
	KindForbidden:            "forbidden",
	KindConflict:             "conflict",
	KindInvalidState:         "invalid_state",
	KindInsufficientStock:    "insufficient_stock",
	KindAmountExceedsBalance: "amount_exceeds_balance",
	KindInvalidTransition:    "invalid_transition",
	KindInvalid:              "invalid",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is a classified domain error. Dependents is only meaningful for
// KindConflict raised by a delete blocked by referencing rows.
type Error struct {
	Kind       Kind
	Message    string
	Dependents int64
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so callers can match with errors.Is(err, ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound             = &Error{Kind: KindNotFound, Message: "not found"}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized, Message: "outside of tenant scope"}
	ErrForbidden            = &Error{Kind: KindForbidden, Message: "missing permission"}
	ErrConflict             = &Error{Kind: KindConflict, Message: "conflict"}
	ErrInvalidState         = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrInsufficientStock    = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrAmountExceedsBalance = &Error{Kind: KindAmountExceedsBalance, Message: "amount exceeds outstanding balance"}
	ErrInvalidTransition    = &Error{Kind: KindInvalidTransition, Message: "invalid transition"}
	ErrInvalid              = &Error{Kind: KindInvalid, Message: "invalid input"}
)

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

func Unauthorized(format string, args ...interface{}) *Error {
	return newf(KindUnauthorized, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(KindForbidden, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, format, args...)
}

// ConflictWithDependents reports a delete refused because count rows still reference the target.
func ConflictWithDependents(count int64, format string, args ...interface{}) *Error {
	e := newf(KindConflict, format, args...)
	e.Dependents = count
	return e
}

func InvalidState(format string, args ...interface{}) *Error {
	return newf(KindInvalidState, format, args...)
}

func InsufficientStock(format string, args ...interface{}) *Error {
	return newf(KindInsufficientStock, format, args...)
}

func AmountExceedsBalance(format string, args ...interface{}) *Error {
	return newf(KindAmountExceedsBalance, format, args...)
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return newf(KindInvalidTransition, format, args...)
}

func Invalid(format string, args ...interface{}) *Error {
	return newf(KindInvalid, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// DependentsOf returns the blocking-dependent count carried by err, if any.
func DependentsOf(err error) int64 {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Dependents
	}
	return 0
}
