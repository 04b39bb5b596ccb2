package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Pipeline errors
	CodeConnectionError     = "CONNECTION_ERROR"     // mailbox unreachable / auth failure
	CodeProtocolError       = "PROTOCOL_ERROR"       // malformed mail server response
	CodeClassificationError = "CLASSIFICATION_ERROR" // inference failure during classify
	CodeCompositionError    = "COMPOSITION_ERROR"    // reply generation failure
	CodeDispatchError       = "DISPATCH_ERROR"       // SMTP send failure
	CodeAlreadyRunning      = "ALREADY_RUNNING"      // concurrent sync pass, no-op

	// Validation errors
	CodeBadRequest   = "BAD_REQUEST"
	CodeInvalidInput = "INVALID_INPUT"

	// Resource errors
	CodeNotFound = "NOT_FOUND"
	CodeConflict = "CONFLICT"

	// Auth errors
	CodeUnauthorized = "UNAUTHORIZED"

	// Internal errors
	CodeDatabaseError = "DATABASE_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeTimeout       = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Pipeline errors

// ConnectionError wraps a dial/login failure against a tenant mailbox.
// Tenant-scoped: retried with backoff, never fatal to the scheduler.
func ConnectionError(host string, err error) *AppError {
	return &AppError{
		Code:    CodeConnectionError,
		Message: fmt.Sprintf("mailbox connection failed: %s", host),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"host": host},
		Err:     err,
	}
}

// ProtocolError wraps a malformed mail-server response.
func ProtocolError(host string, err error) *AppError {
	return &AppError{
		Code:    CodeProtocolError,
		Message: fmt.Sprintf("mail protocol error: %s", host),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"host": host},
		Err:     err,
	}
}

func ClassificationError(err error) *AppError {
	return &AppError{
		Code:    CodeClassificationError,
		Message: "intent classification failed",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func CompositionError(err error) *AppError {
	return &AppError{
		Code:    CodeCompositionError,
		Message: "reply composition failed",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func DispatchError(jobID int64, err error) *AppError {
	return &AppError{
		Code:    CodeDispatchError,
		Message: "smtp dispatch failed",
		Status:  http.StatusBadGateway,
		Details: map[string]any{"job_id": jobID},
		Err:     err,
	}
}

// AlreadyRunning marks a sync pass skipped because the mailbox lock is held.
// The triggering call treats it as a no-op, not a failure.
func AlreadyRunning(mailboxID int64) *AppError {
	return &AppError{
		Code:    CodeAlreadyRunning,
		Message: "sync already running for mailbox",
		Status:  http.StatusConflict,
		Details: map[string]any{"mailbox_id": mailboxID},
	}
}

// Validation / resource errors

func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func InvalidInput(field, reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("invalid input for '%s': %s", field, reason),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// Internal errors

func DatabaseError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: fmt.Sprintf("database error: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func Timeout(operation string) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeInternalError, "internal server error", http.StatusInternalServerError)
}

// IsCode reports whether err carries the given application error code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
