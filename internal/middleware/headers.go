package middleware

import "net/http"

// apiSecurityHeaders are set on every API response. Decisions are
// per-request and must never be served from a shared cache.
var apiSecurityHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"Cache-Control":          "no-store",
	"Referrer-Policy":        "no-referrer",
}

// removedHeaders leak implementation details and are stripped before the
// response is written.
var removedHeaders = []string{"Server", "X-Powered-By"}

// SecurityHeaders returns a middleware that adds the API security headers.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for name, value := range apiSecurityHeaders {
				w.Header().Set(name, value)
			}
			next.ServeHTTP(&headerRemovingResponseWriter{ResponseWriter: w}, r)
		})
	}
}

// headerRemovingResponseWriter drops removedHeaders when the status is written.
type headerRemovingResponseWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

// WriteHeader removes the stripped headers before writing the status code.
func (w *headerRemovingResponseWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		for _, name := range removedHeaders {
			w.ResponseWriter.Header().Del(name)
		}
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write implicitly writes a 200 status first.
func (w *headerRemovingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter.
func (w *headerRemovingResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
