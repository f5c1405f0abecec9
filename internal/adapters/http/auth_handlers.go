package http

import (
	"net/http"
	"time"

	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/config"
	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/middleware"
	"gitlab.com/chatforge/api/guilddesk-service/internal/application"
	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
	"gitlab.com/chatforge/api/guilddesk-service/pkg/crypto"
)

const (
	stateCookieName = "guilddesk_oauth_state"
	stateLifetime   = 10 * time.Minute
)

// AuthHandler serves the OAuth login flow and session endpoints.
type AuthHandler struct {
	cfgProvider config.Provider
	sessions    *application.SessionManager
	csrf        *application.CSRFService
	provider    domain.IdentityProvider
	logger      domain.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(
	cfgProvider config.Provider,
	sessions *application.SessionManager,
	csrf *application.CSRFService,
	provider domain.IdentityProvider,
	logger domain.Logger,
) *AuthHandler {
	if cfgProvider == nil {
		panic("config provider cannot be nil in NewAuthHandler")
	}
	if sessions == nil {
		panic("session manager cannot be nil in NewAuthHandler")
	}
	if csrf == nil {
		panic("csrf service cannot be nil in NewAuthHandler")
	}
	if provider == nil {
		panic("identity provider cannot be nil in NewAuthHandler")
	}
	if logger == nil {
		panic("logger cannot be nil in NewAuthHandler")
	}
	return &AuthHandler{
		cfgProvider: cfgProvider,
		sessions:    sessions,
		csrf:        csrf,
		provider:    provider,
		logger:      logger,
	}
}

// Login starts the OAuth flow: it sets an anti-forgery state cookie and
// redirects the browser to the identity provider.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state, err := crypto.RandomHex(16)
	if err != nil {
		h.logger.Error(ctx, "Failed to generate oauth state", "error", err.Error())
		domain.NewErrorResponse(domain.ErrInternal, "Failed to start login", "").WriteJSON(w, http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateLifetime.Seconds()),
		HttpOnly: true,
		Secure:   h.cfgProvider.Get().Session.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// Callback completes the OAuth flow: it verifies the state, exchanges the
// authorization code, creates the session, and redirects to the console.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn(ctx, "OAuth callback with bad state", "has_cookie", err == nil)
		domain.NewErrorResponse(domain.ErrBadRequest, "Invalid OAuth state", "").WriteJSON(w, http.StatusBadRequest)
		return
	}
	h.clearStateCookie(w)

	code := r.URL.Query().Get("code")
	if code == "" {
		domain.NewErrorResponse(domain.ErrBadRequest, "Missing authorization code", "").WriteJSON(w, http.StatusBadRequest)
		return
	}

	tokens, err := h.provider.Exchange(ctx, code)
	if err != nil {
		h.logger.Error(ctx, "Failed to exchange authorization code", "error", err.Error())
		domain.NewErrorResponse(domain.ErrUnauthorized, "Authorization failed", "").WriteJSON(w, http.StatusUnauthorized)
		return
	}

	if _, err := h.sessions.CreateSession(ctx, w, tokens); err != nil {
		h.logger.Error(ctx, "Failed to create session", "error", err.Error())
		domain.NewErrorResponse(domain.ErrInternal, "Failed to create session", "").WriteJSON(w, http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.cfgProvider.Get().Server.BaseURL, http.StatusTemporaryRedirect)
}

// Logout tears down the session and clears every auth-related cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearSession(r.Context(), w, r)
	h.csrf.ClearToken(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated caller's identity. Runs behind the session
// middleware, so the identity is always present.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		domain.NewErrorResponse(domain.ErrNoSession, "Authentication required", "").WriteJSON(w, http.StatusUnauthorized)
		return
	}
	if err := writeJSON(w, http.StatusOK, identity); err != nil {
		h.logger.Error(ctx, "Failed to write identity response", "error", err.Error())
	}
}

// CSRFToken issues a fresh CSRF token for the client to echo in request headers.
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, err := h.csrf.GenerateToken(ctx, w)
	if err != nil {
		h.logger.Error(ctx, "Failed to issue csrf token", "error", err.Error())
		domain.NewErrorResponse(domain.ErrInternal, "Failed to issue CSRF token", "").WriteJSON(w, http.StatusInternalServerError)
		return
	}
	if err := writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token}); err != nil {
		h.logger.Error(ctx, "Failed to write csrf response", "error", err.Error())
	}
}

func (h *AuthHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfgProvider.Get().Session.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
