package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "explicit status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Server", "gin")
				w.Header().Set("X-Powered-By", "go")
				w.WriteHeader(http.StatusCreated)
			},
		},
		{
			name: "implicit status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Server", "gin")
				_, _ = w.Write([]byte("ok"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			SecurityHeaders()(tt.handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			for name, value := range apiSecurityHeaders {
				assert.Equal(t, value, rec.Header().Get(name), name)
			}
			assert.Empty(t, rec.Header().Get("Server"))
			assert.Empty(t, rec.Header().Get("X-Powered-By"))
		})
	}
}
