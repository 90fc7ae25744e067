package middleware

import (
	"net/http"
)

// Body size limits. The API surface carries tiny JSON bodies (a slug,
// a phone number); webhook payloads carry transcript fragments, which
// the provider caps well below this.
const (
	// MaxWebhookBodySize is the maximum size for webhook payloads (256KB).
	MaxWebhookBodySize = 256 << 10

	// MaxJSONBodySize is the maximum size for JSON API requests (64KB).
	MaxJSONBodySize = 64 << 10
)

// BodySizeLimiter limits the size of request bodies.
// This protects against denial-of-service attacks via large payloads.
func BodySizeLimiter(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip if no body
			if r.Body == nil || r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			// Check Content-Length header if present
			if r.ContentLength > maxBytes {
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}

			// Wrap body with a size limiter (handles chunked encoding)
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}

// BodySizeLimiterJSON returns a middleware limiting JSON API request bodies.
func BodySizeLimiterJSON() func(http.Handler) http.Handler {
	return BodySizeLimiter(MaxJSONBodySize)
}

// BodySizeLimiterWebhook returns a middleware limiting webhook payload bodies.
func BodySizeLimiterWebhook() func(http.Handler) http.Handler {
	return BodySizeLimiter(MaxWebhookBodySize)
}
