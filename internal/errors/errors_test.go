package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(cause, ErrorTypeCache, CodeCacheFailed, "Cache load failed")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "boom", err.Details)
	assert.Contains(t, err.Error(), "[cache:CACHE_FAILED]")

	wrapped := fmt.Errorf("outer: %w", err)
	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeCacheFailed, got.Code)
}

func TestInvalidSettings(t *testing.T) {
	err := InvalidSettings("pubkey", "is required")
	assert.True(t, IsInvalidSettings(err))
	assert.True(t, IsInvalidSettings(fmt.Errorf("bootstrap: %w", err)))
	assert.False(t, IsInvalidSettings(stderrors.New("other")))
	assert.False(t, IsRecoverable(err))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err.Type))
}

func TestRelayQueryErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		code  string
		typ   ErrorType
	}{
		{"deadline", context.DeadlineExceeded, "RELAY_TIMEOUT", ErrorTypeTimeout},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), "RELAY_TIMEOUT", ErrorTypeTimeout},
		{"canceled", context.Canceled, "RELAY_CANCELED", ErrorTypeNetwork},
		{"refused", syscall.ECONNREFUSED, "RELAY_CONNECTION_REFUSED", ErrorTypeNetwork},
		{"temporary text", stderrors.New("write: broken pipe"), "RELAY_TEMPORARY", ErrorTypeNetwork},
		{"other", stderrors.New("auth-required: nope"), "RELAY_ERROR", ErrorTypeExternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RelayQueryError("wss://r", tt.cause)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.typ, err.Type)
			assert.True(t, IsRecoverable(err))
		})
	}
}

func TestHandlerWritesJSONError(t *testing.T) {
	h := WrapHandler(func(w http.ResponseWriter, r *http.Request) error {
		return NotFound("conversation", "abc")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversations/abc", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, CodeNotFound, resp.Error.Code)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), resp.Error.RequestID)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
