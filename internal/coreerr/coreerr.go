// Package coreerr defines the error taxonomy returned by the authorization
// and settlement pipelines. Errors those pipelines return carry one of the
// Kinds below so callers can decide whether to retry, decline, or return
// the error to the caller unchanged. The bank core adapters return their
// own *bankcore.BankCoreError and *bankcore.InsufficientFunds types, which
// the pipelines translate into Kinds.
package coreerr

import "errors"

// Kind classifies an Error for callers that need to branch on it without
// string-matching messages.
type Kind string

const (
	InvalidArgument   Kind = "INVALID_ARGUMENT"
	NotFound          Kind = "NOT_FOUND"
	InvalidState      Kind = "INVALID_STATE"
	InsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	BankCore          Kind = "BANK_CORE_ERROR"
	DeclinedByPolicy  Kind = "DECLINED_BY_POLICY"
	Conflict          Kind = "CONFLICT"
)

// Error is a kinded error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Msg     string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds a kinded error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds a kinded error wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Is reports whether err is a coreerr.Error of the given kind, looking
// through any wrapping.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
