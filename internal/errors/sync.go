package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
)

// Codes shared by the sync engine
const (
	CodeInvalidSettings = "INVALID_SETTINGS"
	CodeDecryptFailed   = "DECRYPT_FAILED"
	CodeCacheFailed     = "CACHE_FAILED"
	CodeNotFound        = "NOT_FOUND"
)

// InvalidSettings reports a configuration problem detected before any I/O.
func InvalidSettings(field, reason string) *AppError {
	return New(ErrorTypeValidation, CodeInvalidSettings, fmt.Sprintf("Invalid settings: %s %s", field, reason)).
		WithSeverity(SeverityCritical).
		WithUserMessage("Sync is misconfigured. Check the identity and discovery relays.")
}

// DecryptError wraps a failed decryption of one envelope.
func DecryptError(envelopeID, stage string, cause error) *AppError {
	return Wrap(cause, ErrorTypeDecrypt, CodeDecryptFailed, fmt.Sprintf("Decrypting %s failed", stage)).
		WithSeverity(SeverityLow).
		WithDetails(fmt.Sprintf("envelope %s: %v", envelopeID, cause))
}

// CacheError wraps a failed cache operation.
func CacheError(operation, pubkey string, cause error) *AppError {
	return Wrap(cause, ErrorTypeCache, CodeCacheFailed, fmt.Sprintf("Cache %s failed", operation)).
		WithSeverity(SeverityMedium).
		WithDetails(fmt.Sprintf("pubkey %s: %v", pubkey, cause))
}

// NotFound creates a not found error
func NotFound(resource, id string) *AppError {
	return New(ErrorTypeNotFound, CodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithSeverity(SeverityLow).
		WithDetails(id)
}

// Validation creates a validation error for request input
func Validation(code, message string) *AppError {
	return New(ErrorTypeValidation, code, message).
		WithSeverity(SeverityLow).
		WithUserMessage("Please check your input and try again.")
}

// RelayQueryError classifies the failure of a query against a single relay.
func RelayQueryError(url string, cause error) *AppError {
	errType := ErrorTypeNetwork
	code := "RELAY_ERROR"
	severity := SeverityLow

	var netErr net.Error
	var opErr *net.OpError
	switch {
	case stderrors.Is(cause, context.DeadlineExceeded):
		errType, code = ErrorTypeTimeout, "RELAY_TIMEOUT"
	case stderrors.Is(cause, context.Canceled):
		code = "RELAY_CANCELED"
	case stderrors.Is(cause, syscall.ECONNREFUSED):
		code = "RELAY_CONNECTION_REFUSED"
	case stderrors.Is(cause, syscall.ECONNRESET):
		code = "RELAY_CONNECTION_RESET"
	case stderrors.As(cause, &opErr) && opErr.Op == "dial":
		code = "RELAY_DIAL_FAILED"
	case stderrors.As(cause, &netErr) && netErr.Timeout():
		errType, code = ErrorTypeTimeout, "RELAY_TIMEOUT"
	case websocket.IsCloseError(cause, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		code = "RELAY_CLOSED"
	case isTemporaryNetError(cause):
		code = "RELAY_TEMPORARY"
	default:
		errType = ErrorTypeExternal
		severity = SeverityMedium
	}

	return Wrap(cause, errType, code, fmt.Sprintf("Query to %s failed", url)).
		WithSeverity(severity)
}

// WebSocketError creates an error for notification socket failures
func WebSocketError(operation string, cause error) *AppError {
	code := "WS_ERROR"
	severity := SeverityMedium
	if websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		code = "WS_NORMAL_CLOSURE"
		severity = SeverityLow
	} else if websocket.IsUnexpectedCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		code = "WS_UNEXPECTED_CLOSURE"
	}
	return Wrap(cause, ErrorTypeNetwork, code, fmt.Sprintf("WebSocket %s failed", operation)).
		WithSeverity(severity)
}

// IsRecoverable determines if an error is recoverable (can be retried)
func IsRecoverable(err error) bool {
	appErr, ok := As(err)
	if !ok {
		return false
	}
	switch appErr.Type {
	case ErrorTypeTimeout, ErrorTypeNetwork, ErrorTypeCache:
		return appErr.Severity != SeverityCritical
	case ErrorTypeRateLimit, ErrorTypeExternal:
		return true
	case ErrorTypeInternal:
		return appErr.Severity == SeverityLow || appErr.Severity == SeverityMedium
	}
	return false
}

// ShouldRetry determines if an operation should be retried based on the error
func ShouldRetry(err error, attemptCount int, maxAttempts int) bool {
	if attemptCount >= maxAttempts {
		return false
	}
	return IsRecoverable(err)
}

// IsInvalidSettings reports whether err was raised for bad settings.
func IsInvalidSettings(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == CodeInvalidSettings
}

// isTemporaryNetError checks if a network error is temporary
func isTemporaryNetError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"no route to host",
		"network is unreachable",
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
