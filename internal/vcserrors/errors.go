package vcserrors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation  Kind = "VALIDATION"
	KindNotFound    Kind = "NOT_FOUND"
	KindConflict    Kind = "STRUCTURAL_CONFLICT"
	KindStorage     Kind = "STORAGE"
	KindIdempotency Kind = "IDEMPOTENCY"
)

type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(message string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: message,
	}
}

func Validation(message string, details any) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: message,
		Details: details,
	}
}

// Conflict reports a path segment used inconsistently as both file and
// directory within one tree.
func Conflict(message string) *Error {
	return &Error{
		Kind:    KindConflict,
		Message: message,
	}
}

func Storage(message string, err error) *Error {
	return &Error{
		Kind:    KindStorage,
		Message: message,
		Err:     err,
	}
}

func Idempotency(message string) *Error {
	return &Error{
		Kind:    KindIdempotency,
		Message: message,
	}
}

// IsKind reports whether err (or anything it wraps) is an *Error of the
// given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func IsNotFound(err error) bool    { return IsKind(err, KindNotFound) }
func IsValidation(err error) bool  { return IsKind(err, KindValidation) }
func IsConflict(err error) bool    { return IsKind(err, KindConflict) }
func IsStorage(err error) bool     { return IsKind(err, KindStorage) }
func IsIdempotency(err error) bool { return IsKind(err, KindIdempotency) }
