// Package errors classifies failures of the sync service and renders them
// for the HTTP API.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeCache      ErrorType = "cache"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeDecrypt    ErrorType = "decrypt"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeExternal   ErrorType = "external"
)

// ErrorSeverity represents the severity level of errors
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"      // Absorbed locally, sync continues
	SeverityMedium   ErrorSeverity = "medium"   // Degrades the result of a sync
	SeverityHigh     ErrorSeverity = "high"     // A component stopped working
	SeverityCritical ErrorSeverity = "critical" // The process cannot continue
)

// AppError is a classified error. Type and Code identify it; Details and
// Cause carry what went wrong underneath.
type AppError struct {
	Type        ErrorType
	Code        string
	Message     string
	Details     string
	Severity    ErrorSeverity
	UserMessage string
	Cause       error
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches another AppError with the same type and code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && e.Type == t.Type && e.Code == t.Code
}

// New creates an AppError of medium severity.
func New(errorType ErrorType, code string, message string) *AppError {
	return &AppError{Type: errorType, Code: code, Message: message, Severity: SeverityMedium}
}

// Wrap classifies err. The cause text becomes the details.
func Wrap(err error, errorType ErrorType, code string, message string) *AppError {
	appErr := New(errorType, code, message)
	appErr.Cause = err
	if err != nil {
		appErr.Details = err.Error()
	}
	return appErr
}

func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithUserMessage(message string) *AppError {
	e.UserMessage = message
	return e
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
