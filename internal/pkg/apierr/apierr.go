// Package apierr defines the typed failures returned across component
// boundaries. Callers branch on Code (or errors.Is against the sentinels);
// the wrapped Err carries the underlying cause for logs.
package apierr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeNotAuthenticated   Code = "not_authenticated"
	CodeNotFound           Code = "not_found"
	CodeValidation         Code = "validation_error"
	CodeBackendUnavailable Code = "backend_unavailable"
	CodeConflict           Code = "conflict"

	CodeNotEnrolled        Code = "not_enrolled"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeDuplicateEmail     Code = "duplicate_email"
	CodeWeakPassword       Code = "weak_password"
	CodeEmailNotConfirmed  Code = "email_not_confirmed"
)

type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Code)
	if msg == "" {
		msg = "error"
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so errors.Is(err,
// apierr.ErrNotFound) works regardless of Op or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotAuthenticated   = &Error{Code: CodeNotAuthenticated}
	ErrNotFound           = &Error{Code: CodeNotFound}
	ErrValidation         = &Error{Code: CodeValidation}
	ErrBackendUnavailable = &Error{Code: CodeBackendUnavailable}
	ErrConflict           = &Error{Code: CodeConflict}
	ErrNotEnrolled        = &Error{Code: CodeNotEnrolled}
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials}
	ErrDuplicateEmail     = &Error{Code: CodeDuplicateEmail}
	ErrWeakPassword       = &Error{Code: CodeWeakPassword}
	ErrEmailNotConfirmed  = &Error{Code: CodeEmailNotConfirmed}
)

func New(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func Newf(code Code, op, format string, args ...interface{}) *Error {
	return &Error{Code: code, Op: op, Err: fmt.Errorf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or "" when
// there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Unavailable wraps an arbitrary failure as BackendUnavailable unless it
// already carries a code.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	return New(CodeBackendUnavailable, op, err)
}
