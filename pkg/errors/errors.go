// Package errors defines the coded application errors shared by the labor services
// and their mapping onto HTTP responses.
package errors

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
)

var (
	ErrNotFound           = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrValidation         = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal           = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrConflict           = NewError("CONFLICT", "resource conflict", http.StatusConflict)
	ErrServiceUnavailable = NewError("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable)
	ErrTooManyRequests    = NewError("RATE_LIMITED", "rate limit exceeded", http.StatusTooManyRequests)

	ErrStoreFailure    = NewError("STORE_FAILURE", "durable store unavailable", http.StatusServiceUnavailable)
	ErrInvalidPayload  = NewError("INVALID_PAYLOAD", "payload rejected", http.StatusBadRequest)
	ErrPayloadTooLarge = NewError("PAYLOAD_TOO_LARGE", "payload too large", http.StatusRequestEntityTooLarge)
	ErrLeaseLost       = NewError("LEASE_LOST", "quarantine entry is being processed elsewhere", http.StatusConflict)
	ErrStaleClaim      = NewError("STALE_CLAIM", "raw message claim is no longer held", http.StatusConflict)
)

// Codes that never succeed on a second attempt with the same input.
var permanentCodes = map[string]bool{
	ErrValidation.Code:      true,
	ErrNotFound.Code:        true,
	ErrInvalidPayload.Code:  true,
	ErrPayloadTooLarge.Code: true,
	ErrConflict.Code:        true,
}

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

// Error is a coded application error. Package-level values are templates: every
// With* method returns a copy.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Cause   error

	// fatal overrides the code based classification when set.
	fatal *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

func (e *Error) Error() string {
	msg := e.Message
	if m, ok := e.Details["message"].(string); ok && m != "" {
		msg = m
	}
	if e.Cause == nil {
		return e.Code + ": " + msg
	}
	return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether retrying cannot help. An explicit AsFatal wins, then the
// classification of the cause, then the code.
func (e *Error) IsFatal() bool {
	if e.fatal != nil {
		return *e.fatal
	}
	if e.Cause != nil {
		var r RetryableError
		if errors.As(e.Cause, &r) {
			return !r.IsRetryable()
		}
		var f FatalError
		if errors.As(e.Cause, &f) {
			return f.IsFatal()
		}
	}
	return permanentCodes[e.Code]
}

func (e *Error) IsRetryable() bool {
	return !e.IsFatal()
}

func (e *Error) WithCause(cause error) *Error {
	c := e.clone()
	c.Cause = cause
	return c
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	c := e.clone()
	c.Details[key] = value
	return c
}

func (e *Error) AsFatal() *Error {
	c := e.clone()
	fatal := true
	c.fatal = &fatal
	return c
}

func (e *Error) clone() *Error {
	c := *e
	c.Details = make(map[string]interface{}, len(e.Details)+1)
	maps.Copy(c.Details, e.Details)
	return &c
}

// HasCode reports whether err wraps an *Error carrying the code of target.
func HasCode(err error, target *Error) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == target.Code
}

func IsNotFound(err error) bool {
	return HasCode(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return HasCode(err, ErrValidation)
}

// IsConflict also matches lost leases and stale claims, both of which mean another
// worker got there first.
func IsConflict(err error) bool {
	return HasCode(err, ErrConflict) || HasCode(err, ErrLeaseLost) || HasCode(err, ErrStaleClaim)
}

func IsStoreFailure(err error) bool {
	return HasCode(err, ErrStoreFailure)
}

// IsRetryable classifies an arbitrary error. Unclassified errors count as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	var f FatalError
	if errors.As(err, &f) {
		return !f.IsFatal()
	}
	return true
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// ErrorResponse documents the body written by ToErrorResponse.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	ErrorCode string                 `json:"error_code"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ToErrorResponse renders err as a JSON body. Errors without a code are reported as
// internal errors.
func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	body := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	return body
}
