package middleware

import (
	"context"
	"errors"
	"net/http"

	"gitlab.com/chatforge/api/guilddesk-service/internal/application"
	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
	"gitlab.com/chatforge/api/guilddesk-service/pkg/contextkeys"
)

// NewSessionAuthMiddleware resolves the caller's session and injects the
// resulting identity into the request context. Requests without a usable
// session are rejected with 401 before reaching the handler; the session
// manager expires any dead cookie on the same response.
func NewSessionAuthMiddleware(sessions *application.SessionManager, logger domain.Logger) func(http.Handler) http.Handler {
	if sessions == nil {
		panic("session manager cannot be nil in NewSessionAuthMiddleware")
	}
	if logger == nil {
		panic("logger cannot be nil in NewSessionAuthMiddleware")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			identity, err := sessions.GetSession(ctx, w, r)
			if err != nil {
				code := domain.ErrNoSession
				message := "Authentication required"
				if errors.Is(err, application.ErrSessionExpired) {
					message = "Session expired, please log in again"
				} else if !errors.Is(err, application.ErrNoActiveSession) {
					logger.Error(ctx, "Failed to resolve session", "error", err.Error())
					code = domain.ErrInternal
					message = "Failed to resolve session"
					domain.NewErrorResponse(code, message, "").WriteJSON(w, http.StatusInternalServerError)
					return
				}
				domain.NewErrorResponse(code, message, "").WriteJSON(w, http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, contextkeys.IdentityKey, identity)
			ctx = context.WithValue(ctx, contextkeys.UserIDKey, identity.UserID)
			ctx = context.WithValue(ctx, contextkeys.SessionIDKey, identity.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the session identity injected by the session
// middleware, if any.
func IdentityFromContext(ctx context.Context) (*domain.SessionIdentity, bool) {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(*domain.SessionIdentity)
	return identity, ok
}
