package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shugur-Network/dmsync/internal/logger"
	"github.com/Shugur-Network/dmsync/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ErrorBody is the payload of an error response.
type ErrorBody struct {
	Type      ErrorType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// ErrorResponse is the JSON document written for a failed request.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

var statusByType = map[ErrorType]int{
	ErrorTypeValidation: http.StatusBadRequest,
	ErrorTypeNotFound:   http.StatusNotFound,
	ErrorTypeRateLimit:  http.StatusTooManyRequests,
	ErrorTypeTimeout:    http.StatusGatewayTimeout,
	ErrorTypeNetwork:    http.StatusBadGateway,
	ErrorTypeExternal:   http.StatusBadGateway,
}

// HTTPStatus maps error types to HTTP status codes
func HTTPStatus(errorType ErrorType) int {
	if status, ok := statusByType[errorType]; ok {
		return status
	}
	return http.StatusInternalServerError
}

var defaultMessages = map[ErrorType]string{
	ErrorTypeValidation: "The request contains invalid data. Please check your input and try again.",
	ErrorTypeNotFound:   "The requested resource was not found.",
	ErrorTypeRateLimit:  "Too many requests. Please wait before trying again.",
	ErrorTypeTimeout:    "The request timed out. Please try again.",
	ErrorTypeCache:      "The local cache could not be accessed.",
	ErrorTypeNetwork:    "A relay could not be reached. Please try again later.",
	ErrorTypeExternal:   "A relay could not be reached. Please try again later.",
}

// UserFriendlyMessage returns the message shown to API clients.
func UserFriendlyMessage(err *AppError) string {
	if err.UserMessage != "" {
		return err.UserMessage
	}
	if msg, ok := defaultMessages[err.Type]; ok {
		return msg
	}
	return "An unexpected error occurred. Please try again."
}

// responder logs failed requests and writes their JSON responses.
type responder struct {
	log *zap.Logger
}

// The logger is resolved on first use so that it picks up the configured core.
var defaultResponder = sync.OnceValue(func() *responder {
	return &responder{log: logger.New("http_errors")}
})

// HandleHTTPError logs err and writes it as a JSON error response.
func HandleHTTPError(w http.ResponseWriter, r *http.Request, err error) {
	defaultResponder().respond(w, r, err, nil)
}

func (rs *responder) respond(w http.ResponseWriter, r *http.Request, err error, stack []byte) {
	appErr, ok := As(err)
	if !ok {
		appErr = Wrap(err, ErrorTypeInternal, "INTERNAL_ERROR", "An internal error occurred").
			WithSeverity(SeverityHigh)
	}
	requestID := RequestID(r.Context())
	if requestID == "" {
		requestID = r.Header.Get(requestIDHeader)
	}

	fields := []zap.Field{
		zap.String("error_type", string(appErr.Type)),
		zap.String("error_code", appErr.Code),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestID),
	}
	if appErr.Details != "" {
		fields = append(fields, zap.String("details", appErr.Details))
	}
	if stack != nil {
		fields = append(fields, zap.ByteString("stack", stack))
	}
	switch appErr.Severity {
	case SeverityLow:
		rs.log.Info(appErr.Message, fields...)
	case SeverityMedium:
		rs.log.Warn(appErr.Message, fields...)
	default:
		rs.log.Error(appErr.Message, fields...)
	}
	metrics.IncrementErrorCount(string(appErr.Type))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(appErr.Type))
	body := ErrorResponse{Error: ErrorBody{
		Type:      appErr.Type,
		Code:      appErr.Code,
		Message:   UserFriendlyMessage(appErr),
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		rs.log.Debug("Failed to encode error response", zap.Error(encErr))
	}
}

// RecoveryMiddleware turns a panicking handler into a 500 response.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			err, ok := recovered.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", recovered)
			}
			defaultResponder().respond(w, r,
				Wrap(err, ErrorTypeInternal, "PANIC_RECOVERED", "An unexpected error occurred").
					WithSeverity(SeverityCritical),
				debug.Stack())
		}()
		next.ServeHTTP(w, r)
	})
}

// HandlerFunc is an HTTP handler that reports failure by returning an error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ServeHTTP assigns a request id and renders a returned error.
func (f HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, id)
	r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

	if err := f(w, r); err != nil {
		HandleHTTPError(w, r, err)
	}
}

// WrapHandler adapts an error-returning handler function.
func WrapHandler(f func(w http.ResponseWriter, r *http.Request) error) http.Handler {
	return HandlerFunc(f)
}
