package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a machine-stable error class.
type Code string

const (
	CodeValidation         Code = "VALIDATION"
	CodeConflict           Code = "CONFLICT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeAuth               Code = "AUTH"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeUpstream           Code = "UPSTREAM"
	CodePartialBatch       Code = "PARTIAL_BATCH"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeTooLarge           Code = "TOO_LARGE"
	CodeInternal           Code = "INTERNAL"
)

// Error is a typed application error. Message is safe to show to callers,
// Err carries the underlying cause for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func Validation(message string) *Error { return New(CodeValidation, message) }

func Conflict(message string) *Error { return New(CodeConflict, message) }

func NotFound(message string) *Error { return New(CodeNotFound, message) }

func Auth(message string) *Error { return New(CodeAuth, message) }

func InvalidCredentials() *Error { return New(CodeInvalidCredentials, "Invalid credentials") }

func Upstream(message string, err error) *Error { return Wrap(CodeUpstream, message, err) }

func Internal(err error) *Error { return Wrap(CodeInternal, "Internal server error", err) }

func RateLimited() *Error { return New(CodeRateLimited, "Too many requests, please try again later") }

func TooLarge(message string) *Error { return New(CodeTooLarge, message) }

// As extracts a typed error from the chain.
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

// Is reports whether the chain contains an error with the given code.
func Is(err error, code Code) bool {
	typed, ok := As(err)
	return ok && typed.Code == code
}

// HTTPStatus maps an error to the status code the API answers with.
// Untyped errors are internal.
func HTTPStatus(err error) int {
	typed, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch typed.Code {
	case CodeValidation, CodeConflict, CodeInvalidCredentials:
		return http.StatusBadRequest
	case CodeAuth:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodePartialBatch:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text that may be sent to clients. Internal and
// upstream failures collapse to a generic message.
func PublicMessage(err error) string {
	typed, ok := As(err)
	if !ok {
		return "Internal server error"
	}
	switch typed.Code {
	case CodeInternal:
		return "Internal server error"
	case CodeUpstream:
		if typed.Message == "" {
			return "Storage service unavailable"
		}
		return typed.Message
	default:
		return typed.Message
	}
}
