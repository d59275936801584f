// Package apperr defines the error taxonomy shared by the catalog, the admission
// engine and the HTTP layer. Every error carries a stable code callers can branch on.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies an error category. Values are part of the public API.
type Code string

const (
	CodeValidation            Code = "validation_error"
	CodeNotFound              Code = "not_found"
	CodeConflict              Code = "conflict"
	CodePastEvent             Code = "past_event"
	CodeDuplicateRegistration Code = "duplicate_registration"
	CodeCapacityExceeded      Code = "capacity_exceeded"
	CodeStorage               Code = "storage_error"
)

// Error is a categorized application error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so wrapped or re-worded errors still
// compare equal to the package sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotFound              = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict              = &Error{Code: CodeConflict, Message: "event cannot be deleted because it has existing registrations"}
	ErrPastEvent             = &Error{Code: CodePastEvent, Message: "registration for past events is not allowed"}
	ErrDuplicateRegistration = &Error{Code: CodeDuplicateRegistration, Message: "this email is already registered for this event"}
	ErrCapacityExceeded      = &Error{Code: CodeCapacityExceeded, Message: "event capacity has been reached"}
	ErrValidation            = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrStorage               = &Error{Code: CodeStorage, Message: "storage failure"}
)

// NotFound returns a not_found error naming the missing entity.
func NotFound(entity string) *Error {
	return &Error{Code: CodeNotFound, Message: entity + " not found"}
}

// Validation returns a validation_error with the given message.
func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps an infrastructure failure. Errors that already carry a code are
// returned unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Code: CodeStorage, Message: op, Err: err}
}

// CodeOf returns the code of err, or CodeStorage for uncategorized errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeStorage
}
