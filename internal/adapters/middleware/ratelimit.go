package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gitlab.com/chatforge/api/guilddesk-service/internal/application"
	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
	"gitlab.com/chatforge/api/guilddesk-service/pkg/contextkeys"
)

// NewRateLimitMiddleware enforces the named tier's fixed-window budget per
// caller. Authenticated callers are keyed by user ID, anonymous ones by client
// IP. Standard X-RateLimit-* headers are set on every response; a denied
// request gets 429 with Retry-After.
func NewRateLimitMiddleware(limiter *application.RateLimiter, tier string, logger domain.Logger) func(http.Handler) http.Handler {
	if limiter == nil {
		panic("rate limiter cannot be nil in NewRateLimitMiddleware")
	}
	if logger == nil {
		panic("logger cannot be nil in NewRateLimitMiddleware")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			identifier := clientIdentifier(r)
			decision := limiter.Check(ctx, tier, identifier)

			if decision.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
			}

			if !decision.Allowed {
				retryAfter := int(time.Until(decision.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				logger.Debug(ctx, "Request rate limited", "tier", tier, "path", r.URL.Path)
				domain.NewErrorResponse(domain.ErrRateLimitExceeded, "Too many requests", "Request budget exhausted for this window.").
					WriteJSON(w, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIdentifier keys the budget by the authenticated user when a session
// middleware ran earlier in the chain, falling back to the client IP.
func clientIdentifier(r *http.Request) string {
	if userID, ok := r.Context().Value(contextkeys.UserIDKey).(string); ok && userID != "" {
		return "user:" + userID
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First hop is the original client.
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
