package middleware

// HTTP header constants.
const (
	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"

	// HeaderRetryAfter is the Retry-After header name.
	HeaderRetryAfter = "Retry-After"

	// HeaderXForwardedFor is the X-Forwarded-For header name.
	HeaderXForwardedFor = "X-Forwarded-For"
)

// ContentTypeJSON is the JSON content type.
const ContentTypeJSON = "application/json; charset=utf-8"

// Error response bodies written by middleware that stops a request.
const (
	ErrRateLimitExceeded     = `{"error":"rate limit exceeded"}`
	ErrInternalServerError   = `{"error":"internal server error"}`
	ErrRequestEntityTooLarge = `{"error":"request entity too large"}`
)
