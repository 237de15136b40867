// Package apperr classifies engine failures so handlers can map them to
// transport status codes without string matching. Every mutating operation
// fails atomically: an error from any layer means no records changed.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the failure class.
type Kind uint8

const (
	// KindAuthorization: caller is not the required principal, or the
	// authorization gate rejected the call.
	KindAuthorization Kind = iota + 1
	// KindNotFound: a referenced pool, challenge, or position is absent.
	KindNotFound
	// KindState: the record exists but its state forbids the operation
	// (inactive, expired, already finalized, locked).
	KindState
	// KindValidation: out-of-range or malformed parameters.
	KindValidation
	// KindArithmetic: an operation would divide by a zero denominator.
	KindArithmetic
	// KindInternal: storage or infrastructure failure.
	KindInternal
)

// Error is a classified engine error. Code is a stable machine-readable
// identifier (e.g. "MinDepositNotMet"); Message is human-readable.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error.
func E(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Ef builds a classified error with a formatted message.
func Ef(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// KindOf extracts the kind, defaulting to KindInternal for unclassified
// errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf extracts the stable code, or "Internal" for unclassified errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "Internal"
}

// HTTPStatus maps an error to a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindState:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindArithmetic:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
