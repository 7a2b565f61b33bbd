// Package apperrors carries the error taxonomy shared by the fulfillment domain.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can branch on it without string matching.
type Kind string

const (
	KindNotFound            Kind = "NOT_FOUND"
	KindConflict            Kind = "CONFLICT"
	KindInvalidState        Kind = "INVALID_STATE"
	KindInsufficientStock   Kind = "INSUFFICIENT_STOCK"
	KindLimitExceeded       Kind = "LIMIT_EXCEEDED"
	KindValidationFailed    Kind = "VALIDATION_FAILED"
	KindExternalUnavailable Kind = "EXTERNAL_UNAVAILABLE"
	KindInternalFailure     Kind = "INTERNAL_FAILURE"
)

// Error is a classified domain error. Code is an optional, more specific reason
// such as EMPTY_CART or OUT_OF_WINDOW.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, and by code when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithCode returns a copy of e carrying the given reason code.
func (e *Error) WithCode(code string) *Error {
	cp := *e
	cp.Code = code
	return &cp
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. An err that is already classified keeps its kind.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Internal wraps a storage or programming failure.
func Internal(err error, msg string) error {
	return Wrap(KindInternalFailure, err, msg)
}

// KindOf returns the kind of the first classified error in the chain.
// Unclassified errors are reported as internal failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternalFailure
}

// CodeOf returns the reason code of the first classified error in the chain.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to the response status used by the HTTP layer.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidState, KindInsufficientStock:
		return http.StatusConflict
	case KindLimitExceeded:
		return http.StatusTooManyRequests
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindExternalUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
