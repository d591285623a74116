package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/accessd/internal/observability"
)

func TestRecovery(t *testing.T) {
	t.Parallel()

	logger, buf := newBufferLogger(t)
	metrics := observability.NewMetrics("test")

	handler := Recovery(logger, metrics)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("registry exploded")
	}))

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/access/check", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ContentTypeJSON, rec.Header().Get(HeaderContentType))
	assert.JSONEq(t, ErrInternalServerError, rec.Body.String())

	entries := buf.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "panic recovered", entries[0]["message"])
	assert.Equal(t, "registry exploded", entries[0]["error"])
	assert.Equal(t, "/v1/access/check", entries[0]["path"])
	assert.Contains(t, entries[0]["stack"], "runtime/debug.Stack")
}

func TestRecovery_PassThrough(t *testing.T) {
	t.Parallel()

	handler := Recovery(observability.NopLogger(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecovery_ErrAbortHandlerRepanics(t *testing.T) {
	t.Parallel()

	handler := Recovery(observability.NopLogger(), nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
