package common

import (
	"errors"
	"net/http"
)

// Error codes shared by handlers and services.
const (
	CodeValidation       = "VALIDATION"
	CodeBadRequest       = "BAD_REQUEST"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeUpstream         = "UPSTREAM"
	CodeInfeasible       = "INFEASIBLE"
	CodeDecisionRequired = "DECISION_REQUIRED"
	CodeAborted          = "ABORTED"
	CodeOrderFailed      = "ORDER_FAILED"
	CodePaymentFailed    = "PAYMENT_FAILED"
	CodeSystem           = "SYSTEM_ERROR"
	CodeInternal         = "INTERNAL"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// WithDetails attaches details rendered alongside the error payload.
func (e *AppError) WithDetails(details any) *AppError {
	if e == nil {
		return nil
	}
	e.Details = details
	return e
}

// AsAppError extracts an AppError from the chain.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Validation reports a locally recoverable input error.
func Validation(message string, err error) *AppError {
	return NewAppError(CodeValidation, message, http.StatusBadRequest, err)
}

// Upstream reports a network or backend failure. The operation is abandoned and the user retries manually.
func Upstream(message string, err error) *AppError {
	if message == "" {
		message = "the service is temporarily unavailable, please try again"
	}
	return NewAppError(CodeUpstream, message, http.StatusBadGateway, err)
}
