package middleware

import (
	"errors"
	"net/http"

	"gitlab.com/chatforge/api/guilddesk-service/internal/application"
	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
)

// NewCSRFMiddleware verifies the double-submit CSRF token on every
// state-changing request. Safe methods pass through untouched.
func NewCSRFMiddleware(csrf *application.CSRFService, logger domain.Logger) func(http.Handler) http.Handler {
	if csrf == nil {
		panic("csrf service cannot be nil in NewCSRFMiddleware")
	}
	if logger == nil {
		panic("logger cannot be nil in NewCSRFMiddleware")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			if err := csrf.VerifyRequest(ctx, r); err != nil {
				details := "CSRF verification failed."
				switch {
				case errors.Is(err, application.ErrCSRFExpired):
					details = "CSRF token expired, request a new one."
				case errors.Is(err, application.ErrCSRFMissing):
					details = "CSRF token missing from header or cookie."
				}
				logger.Debug(ctx, "Rejected request with invalid csrf token", "path", r.URL.Path, "reason", err.Error())
				domain.NewErrorResponse(domain.ErrInvalidCSRFToken, "Invalid CSRF token", details).
					WriteJSON(w, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
