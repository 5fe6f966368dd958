// Package errors provides the application-wide structured error type used
// across the service layer: a stable machine-readable code, an HTTP-ish
// class, an optional cause chain and free-form metadata for callers that
// need to act on specifics (e.g. retry_after) without parsing messages.
package errors

import (
	"errors"
	"fmt"
)

// Class is a coarse error category, roughly mapping to an HTTP status class.
type Class string

const (
	ClassBadRequest        Class = "bad_request"
	ClassConflict          Class = "conflict"
	ClassNotFound          Class = "not_found"
	ClassServiceUnavailable Class = "service_unavailable"
	ClassInternal          Class = "internal"
)

// ApplicationError is the error type every package in this module returns
// for expected, classifiable failures. Unexpected failures should still be
// wrapped in one via WithCause rather than returned bare, so callers can
// rely on errors.As(err, &appErr) working uniformly.
type ApplicationError struct {
	Class   Class
	Code    string
	Message string
	Cause   error
	Metadata map[string]string
}

func (e *ApplicationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ApplicationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// WithCause returns a copy of e carrying the given underlying error. The
// receiver is never mutated since package-level Err* vars are shared.
func (e *ApplicationError) WithCause(cause error) *ApplicationError {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Cause = cause
	return &cp
}

// WithMetadata returns a copy of e with the given metadata merged in.
func (e *ApplicationError) WithMetadata(metadata map[string]string) *ApplicationError {
	if e == nil {
		return nil
	}
	cp := *e
	merged := make(map[string]string, len(e.Metadata)+len(metadata))
	for k, v := range e.Metadata {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}
	cp.Metadata = merged
	return &cp
}

func newError(class Class, code, message string) *ApplicationError {
	return &ApplicationError{Class: class, Code: code, Message: message}
}

func BadRequest(code, message string) *ApplicationError {
	return newError(ClassBadRequest, code, message)
}

func Conflict(code, message string) *ApplicationError {
	return newError(ClassConflict, code, message)
}

func NotFound(code, message string) *ApplicationError {
	return newError(ClassNotFound, code, message)
}

func ServiceUnavailable(code, message string) *ApplicationError {
	return newError(ClassServiceUnavailable, code, message)
}

func InternalServer(code, message string) *ApplicationError {
	return newError(ClassInternal, code, message)
}

// Reason returns the stable code of err's ApplicationError, or "" if err
// does not carry one.
func Reason(err error) string {
	var appErr *ApplicationError
	if !errors.As(err, &appErr) || appErr == nil {
		return ""
	}
	return appErr.Code
}

// Is reports whether err is (or wraps) an ApplicationError with the given
// code.
func Is(err error, code string) bool {
	var appErr *ApplicationError
	if !errors.As(err, &appErr) || appErr == nil {
		return false
	}
	return appErr.Code == code
}
