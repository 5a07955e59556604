// Package apperr defines the error kinds shared by the memory, index and
// model lifecycle components.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can decide whether to re-prompt,
// degrade or abort.
type Kind string

const (
	// KindAuthentication is a wrong passphrase/key or tampered ciphertext.
	// Never auto-recovered.
	KindAuthentication Kind = "AUTHENTICATION"
	// KindStoreCorruption is an unencrypted store that could not be parsed.
	KindStoreCorruption Kind = "STORE_CORRUPTION"
	// KindSchemaUpgrade is a store written with an older schema.
	KindSchemaUpgrade Kind = "SCHEMA_UPGRADE"
	// KindRuntimeUnavailable is an unreachable model runtime, registry or embedder.
	KindRuntimeUnavailable Kind = "RUNTIME_UNAVAILABLE"
	// KindRuntimeMissing is a runtime executable that is not installed.
	KindRuntimeMissing Kind = "RUNTIME_MISSING"
	// KindOperationFailed is a runtime that is present but failed the request.
	KindOperationFailed Kind = "OPERATION_FAILED"
	// KindNotFound is a referenced model or file that does not exist.
	KindNotFound Kind = "NOT_FOUND"
	// KindTimeout is a model call that exceeded its deadline.
	KindTimeout Kind = "TIMEOUT"
)

// Sentinels for errors.Is comparisons.
var (
	ErrAuthentication     = &Error{Kind: KindAuthentication}
	ErrStoreCorruption    = &Error{Kind: KindStoreCorruption}
	ErrSchemaUpgrade      = &Error{Kind: KindSchemaUpgrade}
	ErrRuntimeUnavailable = &Error{Kind: KindRuntimeUnavailable}
	ErrRuntimeMissing     = &Error{Kind: KindRuntimeMissing}
	ErrOperationFailed    = &Error{Kind: KindOperationFailed}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrTimeout            = &Error{Kind: KindTimeout}
)

// Error carries a Kind, the operation that failed and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := string(e.Kind)
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

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// E builds an *Error. msg may be empty.
func E(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

// Ef builds an *Error with a formatted message and no cause.
func Ef(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err must abort a user-initiated operation
// instead of degrading.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindAuthentication, KindNotFound:
		return true
	}
	return false
}
