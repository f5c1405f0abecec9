package http

import (
	"net/http"

	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/middleware"
	"gitlab.com/chatforge/api/guilddesk-service/internal/application"
	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
)

// Rate limit tiers referenced by the route table. Budgets live in config.
const (
	tierAuth = "auth"
	tierAPI  = "api"
)

// NewRouter assembles the application's route table with its middleware
// chains. Every route gets a request ID; the login flow is rate limited by
// client IP, the API by authenticated user; state-changing API routes require
// a CSRF token.
func NewRouter(
	authHandler *AuthHandler,
	guildHandler *GuildHandler,
	rateLimiter *application.RateLimiter,
	sessionManager *application.SessionManager,
	csrfService *application.CSRFService,
	logger domain.Logger,
) http.Handler {
	authLimit := middleware.NewRateLimitMiddleware(rateLimiter, tierAuth, logger)
	apiLimit := middleware.NewRateLimitMiddleware(rateLimiter, tierAPI, logger)
	session := middleware.NewSessionAuthMiddleware(sessionManager, logger)
	csrf := middleware.NewCSRFMiddleware(csrfService, logger)

	mux := http.NewServeMux()

	mux.Handle("GET /auth/login", chain(http.HandlerFunc(authHandler.Login), authLimit))
	mux.Handle("GET /auth/callback", chain(http.HandlerFunc(authHandler.Callback), authLimit))
	mux.Handle("POST /auth/logout", chain(http.HandlerFunc(authHandler.Logout), session, csrf))
	mux.Handle("GET /auth/me", chain(http.HandlerFunc(authHandler.Me), session, apiLimit))

	mux.Handle("GET /api/csrf", chain(http.HandlerFunc(authHandler.CSRFToken), session, apiLimit))

	mux.Handle("GET /api/guilds", chain(http.HandlerFunc(guildHandler.List), session, apiLimit))
	mux.Handle("GET /api/guilds/{guildID}", chain(http.HandlerFunc(guildHandler.Get), session, apiLimit))
	mux.Handle("PATCH /api/guilds/{guildID}/settings", chain(http.HandlerFunc(guildHandler.UpdateSettings), session, apiLimit, csrf))
	mux.Handle("GET /api/guilds/{guildID}/members", chain(http.HandlerFunc(guildHandler.Members), session, apiLimit))

	return middleware.RequestID(mux)
}

// chain wraps h in the given middleware, outermost first.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
