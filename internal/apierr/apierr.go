// Package apierr defines structured errors returned across the collector boundary.
// Every error carries a machine-readable code and the HTTP status it maps to.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the failure type in responses.
type Code string

// Error codes.
const (
	CodeInvalidServerID Code = "INVALID_SERVER_ID"
	CodeServerForbidden Code = "SERVER_NOT_ALLOWED"
	CodeInvalidPayload  Code = "INVALID_PAYLOAD"
	CodeNotFound        Code = "NOT_FOUND"
	CodeStorage         Code = "STORAGE_ERROR"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeMethod          Code = "METHOD_NOT_ALLOWED"
	CodeInternal        Code = "INTERNAL"
)

// Error is a structured error with a code, an HTTP status and an optional cause.
// The cause is logged but never rendered to clients.
type Error struct {
	Cause   error
	Code    Code
	Message string
	Status  int
}

// Error returns the message, with the cause appended when present.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// MarshalJSON renders the public part of the error: {"error": ..., "code": ...}.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error string `json:"error"`
		Code  Code   `json:"code"`
	}{Error: e.Message, Code: e.Code})
}

// New creates an error with an explicit code and status.
func New(status int, code Code, format string, args ...any) *Error {
	return &Error{Status: status, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a 400 error.
func Validation(code Code, format string, args ...any) *Error {
	return New(http.StatusBadRequest, code, format, args...)
}

// NotFound creates a 404 error.
func NotFound(format string, args ...any) *Error {
	return New(http.StatusNotFound, CodeNotFound, format, args...)
}

// Storage creates a 500 error wrapping a persistence failure.
func Storage(cause error, format string, args ...any) *Error {
	e := New(http.StatusInternalServerError, CodeStorage, format, args...)
	e.Cause = cause
	return e
}

// Internal creates a generic 500 error that hides its cause from clients.
func Internal(cause error) *Error {
	e := New(http.StatusInternalServerError, CodeInternal, "internal server error")
	e.Cause = cause
	return e
}

// As converts any error to a structured one; unknown errors become Internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Internal(err)
}

// Is reports whether err is a structured error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
