// Package errors defines the typed failure taxonomy returned by every
// lifecycle operation. Handlers translate ServiceError values to HTTP
// responses; services construct them at the operation boundary so no raw
// storage fault escapes to a caller.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code classifies a failure.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeForbidden    Code = "forbidden"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"
	CodeUnavailable  Code = "unavailable"
	CodeInvalid      Code = "invalid_argument"
	CodeInternal     Code = "internal"
)

// Conflict reasons. Each names the invariant the request would have violated.
const (
	ReasonJobClosed            = "job_closed"
	ReasonOwnJob               = "own_job"
	ReasonDuplicateApplication = "duplicate_application"
	ReasonAlreadyProcessed     = "already_processed"
	ReasonWorkerExists         = "worker_exists"
	ReasonCannotWithdraw       = "cannot_withdraw"
	ReasonAlreadyRated         = "already_rated"
	ReasonJobNotCompleted      = "job_not_completed"
	ReasonAlreadyCancelled     = "already_cancelled"
)

// ServiceError is the error type crossing service boundaries.
type ServiceError struct {
	Code       Code
	Reason     string // set for conflicts only
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	cause      error
}

func (e *ServiceError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails attaches a key/value pair for diagnostics and returns the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NotFound reports an absent entity.
func NotFound(entity, id string) *ServiceError {
	return &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s %s not found", entity, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// Forbidden reports a caller lacking ownership or role.
func Forbidden(message string) *ServiceError {
	return &ServiceError{Code: CodeForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

// Conflict reports an invariant violation with a machine-readable reason.
func Conflict(reason, message string) *ServiceError {
	return &ServiceError{
		Code:       CodeConflict,
		Reason:     reason,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// Unauthorized reports a missing or invalid caller identity.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// Unavailable reports a store or timeout failure.
func Unavailable(message string, cause error) *ServiceError {
	return &ServiceError{
		Code:       CodeUnavailable,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		cause:      cause,
	}
}

// Invalid reports a malformed argument.
func Invalid(message string) *ServiceError {
	return &ServiceError{Code: CodeInvalid, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Internal reports an unexpected fault.
func Internal(message string, cause error) *ServiceError {
	return &ServiceError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		cause:      cause,
	}
}

// GetServiceError extracts a ServiceError from err, or nil if none is present.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	svcErr := GetServiceError(err)
	return svcErr != nil && svcErr.Code == code
}

// IsNotFound reports whether err is a NotFound failure.
func IsNotFound(err error) bool { return IsCode(err, CodeNotFound) }

// IsForbidden reports whether err is a Forbidden failure.
func IsForbidden(err error) bool { return IsCode(err, CodeForbidden) }

// IsConflict reports whether err is a Conflict with the given reason. An
// empty reason matches any conflict.
func IsConflict(err error, reason string) bool {
	svcErr := GetServiceError(err)
	if svcErr == nil || svcErr.Code != CodeConflict {
		return false
	}
	return reason == "" || svcErr.Reason == reason
}
