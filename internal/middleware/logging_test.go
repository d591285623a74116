package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/accessd/internal/observability"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		wantLevel string
	}{
		{name: "success", status: http.StatusOK, body: `{"allowed":true}`, wantLevel: "info"},
		{name: "client error", status: http.StatusBadRequest, body: `{"error":"bad"}`, wantLevel: "warn"},
		{name: "server error", status: http.StatusInternalServerError, body: "", wantLevel: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, buf := newBufferLogger(t)
			handler := RequestIDWithGenerator(func() string { return "req-1" })(
				Logging(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					observability.SetRoute(r.Context(), "/v1/access/check")
					w.WriteHeader(tt.status)
					_, _ = w.Write([]byte(tt.body))
				})),
			)

			req := httptest.NewRequest(http.MethodPost, "/v1/access/check", nil)
			req.RemoteAddr = "10.0.0.9:4242"
			req.Header.Set("User-Agent", "accessd-test")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			entries := buf.entries(t)
			require.Len(t, entries, 1)
			entry := entries[0]
			assert.Equal(t, "http request", entry["message"])
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, http.MethodPost, entry["method"])
			assert.Equal(t, "/v1/access/check", entry["route"])
			assert.Equal(t, float64(tt.status), entry["status"])
			assert.Equal(t, float64(len(tt.body)), entry["size"])
			assert.Equal(t, "10.0.0.9", entry["client_ip"])
			assert.Equal(t, "accessd-test", entry["user_agent"])
			assert.Equal(t, "req-1", entry["request_id"])
		})
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	_, err := rw.Write([]byte("ok"))
	require.NoError(t, err)
	rw.WriteHeader(http.StatusTeapot)
	rw.Flush()

	assert.Equal(t, http.StatusOK, rw.status)
	assert.Equal(t, 2, rw.size)
	assert.True(t, rec.Flushed)
}
