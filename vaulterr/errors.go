// Package vaulterr defines the error taxonomy shared by every qvault
// package. Each error carries a machine readable Kind next to its human
// readable message so callers can tell bad input apart from corrupted
// secrets, underfunded spends and collaborator failures.
package vaulterr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind uint8

const (
	// KindUnknown is the zero value and is never produced by this module.
	KindUnknown Kind = iota

	// KindValidation marks malformed caller input: bad secret encoding,
	// wrong message length, malformed addresses or identifiers. Never
	// retried, never partially applied.
	KindValidation

	// KindIntegrity marks key material whose recomputed public data does
	// not match what was stored alongside it. Operations fail closed.
	KindIntegrity

	// KindInsufficientFunds marks a spend whose inputs cannot cover the
	// fee plus the minimum output.
	KindInsufficientFunds

	// KindExternal marks a failure reported by a ledger indexer,
	// broadcaster or price source.
	KindExternal

	// KindFatal marks unrecoverable conditions such as an unavailable
	// entropy source.
	KindFatal
)

// String returns the kind's identifier.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindIntegrity:
		return "integrity"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindExternal:
		return "external"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Recoverable reports whether a caller may retry with different input.
func (k Kind) Recoverable() bool {
	return k != KindFatal && k != KindUnknown
}

// Error is the concrete error type returned across package boundaries.
type Error struct {
	// Kind is the machine readable class of the failure.
	Kind Kind

	// Op names the operation that failed, e.g. "wots.RestoreWOTS16".
	Op string

	// Msg is the human readable description.
	Msg string

	// Err is the wrapped cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}

	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error that only carries a kind, which lets the kind
// sentinels below be used with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrIntegrity         = &Error{Kind: KindIntegrity}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrExternal          = &Error{Kind: KindExternal}
	ErrFatal             = &Error{Kind: KindFatal}
)

// New returns an error of the given kind.
func New(kind Kind, op, format string, args ...interface{}) error {
	return &Error{
		Kind: kind,
		Op:   op,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Wrap returns an error of the given kind wrapping err. A nil err yields nil.
func Wrap(kind Kind, op string, err error, format string,
	args ...interface{}) error {

	if err == nil {
		return nil
	}

	return &Error{
		Kind: kind,
		Op:   op,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}
