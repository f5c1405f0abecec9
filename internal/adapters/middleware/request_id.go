// Package middleware provides the HTTP middleware chain: request IDs, rate
// limiting, session authentication, and CSRF verification.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"gitlab.com/chatforge/api/guilddesk-service/pkg/contextkeys"
)

const requestIDHeader = "X-Request-ID"

// RequestID ensures every request carries a request ID: an incoming header
// value is trusted, otherwise a new UUID is generated. The ID is placed in the
// request context for logging and echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), contextkeys.RequestIDKey, requestID)
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
