// Package application holds the services that sit between HTTP transport and
// the data-access layer: session lifecycle, CSRF protection, and rate limiting.
package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/config"
	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/metrics"
	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
	"gitlab.com/chatforge/api/guilddesk-service/internal/repository"
)

var (
	// ErrNoActiveSession is returned when the request carries no session
	// cookie, an unverifiable token, or a token referencing a session record
	// that no longer exists or is inactive.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionExpired is returned when a session exists but cannot continue:
	// its absolute lifetime elapsed or its provider tokens could not be
	// refreshed. The backing record is removed before this is returned.
	ErrSessionExpired = errors.New("session expired")
)

// sessionClaims is the signed session token body. It carries only references;
// the OAuth tokens stay server-side in the session record.
type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// refreshCall is one in-flight token refresh, shared by every concurrent
// request that needs the same session refreshed.
type refreshCall struct {
	done   chan struct{}
	record *domain.SessionRecord
	err    error
}

// SessionManager owns the console login lifecycle: creating sessions after an
// OAuth exchange, resolving and refreshing them per request, and sweeping
// expired records. Provider-token refreshes are single-flight per session and
// fail closed: a session whose tokens cannot be refreshed is destroyed.
type SessionManager struct {
	cfgProvider config.Provider
	sessions    *repository.SessionRepository
	users       *repository.UserRepository
	provider    domain.IdentityProvider
	logger      domain.Logger

	refreshMu  sync.Mutex
	refreshing map[string]*refreshCall

	now func() time.Time
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(
	cfgProvider config.Provider,
	sessions *repository.SessionRepository,
	users *repository.UserRepository,
	provider domain.IdentityProvider,
	logger domain.Logger,
) *SessionManager {
	if cfgProvider == nil {
		panic("config provider cannot be nil in NewSessionManager")
	}
	if sessions == nil {
		panic("session repository cannot be nil in NewSessionManager")
	}
	if users == nil {
		panic("user repository cannot be nil in NewSessionManager")
	}
	if provider == nil {
		panic("identity provider cannot be nil in NewSessionManager")
	}
	if logger == nil {
		panic("logger cannot be nil in NewSessionManager")
	}
	return &SessionManager{
		cfgProvider: cfgProvider,
		sessions:    sessions,
		users:       users,
		provider:    provider,
		logger:      logger,
		refreshing:  make(map[string]*refreshCall),
		now:         time.Now,
	}
}

// CreateSession establishes a console session from a freshly exchanged OAuth
// token pair: it resolves the user's profile, persists the session record, and
// sets the signed session cookie on the response.
func (m *SessionManager) CreateSession(ctx context.Context, w http.ResponseWriter, tokens *domain.OAuthTokens) (*domain.SessionIdentity, error) {
	profile, err := m.provider.FetchProfile(ctx, tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile for new session: %w", err)
	}

	user, err := m.users.SyncProfile(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to persist user for new session: %w", err)
	}

	now := m.now().UTC()
	record, err := m.sessions.Create(ctx, &domain.SessionRecord{
		SessionID:    uuid.NewString(),
		UserID:       profile.UserID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenExpiry:  tokens.Expiry,
		Active:       true,
		CreatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist session record: %w", err)
	}

	signed, err := m.signToken(record, now)
	if err != nil {
		// Roll back the orphaned record; nothing references it without a cookie.
		if _, delErr := m.sessions.DeleteBySessionID(ctx, record.SessionID); delErr != nil {
			m.logger.Warn(ctx, "Failed to remove orphaned session record", "session_id", record.SessionID, "error", delErr.Error())
		}
		return nil, err
	}

	m.setSessionCookie(w, signed, int(m.lifetime().Seconds()))
	m.logger.Info(ctx, "Session created", "session_id", record.SessionID, "user_id", record.UserID)

	return &domain.SessionIdentity{
		UserID:      user.UserID,
		Username:    user.Username,
		Avatar:      user.Avatar,
		SessionID:   record.SessionID,
		AccessToken: record.AccessToken,
	}, nil
}

// GetSession resolves the caller's identity from the session cookie. It
// verifies the signed token, loads the backing record, and refreshes the
// provider tokens when they are close to expiry. Refresh failures destroy the
// session and surface ErrSessionExpired. A cookie that fails verification or
// references a dead session is expired on the response, so browsers stop
// replaying it; only transient store errors leave the cookie in place.
func (m *SessionManager) GetSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (*domain.SessionIdentity, error) {
	if _, err := r.Cookie(m.cfgProvider.Get().Session.CookieName); err != nil {
		return nil, ErrNoActiveSession
	}

	claims, err := m.parseRequestToken(r)
	if err != nil {
		m.clearSessionCookie(w)
		return nil, err
	}

	record, err := m.sessions.GetBySessionID(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if record == nil || !record.Active {
		m.clearSessionCookie(w)
		return nil, ErrNoActiveSession
	}

	now := m.now()
	if repository.ExpiredBefore(record, m.lifetime(), now) {
		if _, delErr := m.sessions.DeleteBySessionID(ctx, record.SessionID); delErr != nil {
			m.logger.Warn(ctx, "Failed to remove expired session record", "session_id", record.SessionID, "error", delErr.Error())
		}
		m.clearSessionCookie(w)
		return nil, ErrSessionExpired
	}

	if m.needsRefresh(record, now) {
		record, err = m.refreshSingleFlight(ctx, record)
		if err != nil {
			m.clearSessionCookie(w)
			return nil, ErrSessionExpired
		}
	}

	identity := &domain.SessionIdentity{
		UserID:      record.UserID,
		SessionID:   record.SessionID,
		AccessToken: record.AccessToken,
	}
	// Username and avatar come from the cached user record; their absence
	// never blocks an authenticated request.
	if user, userErr := m.users.GetByID(ctx, record.UserID); userErr == nil && user != nil {
		identity.Username = user.Username
		identity.Avatar = user.Avatar
	}
	return identity, nil
}

// ClearSession tears down the caller's session: the provider token is revoked
// best effort, the record is removed, and the cookie is expired. Always clears
// the cookie, even when no valid session was found.
func (m *SessionManager) ClearSession(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	defer m.clearSessionCookie(w)

	claims, err := m.parseRequestToken(r)
	if err != nil {
		return
	}
	record, err := m.sessions.GetBySessionID(ctx, claims.SessionID)
	if err != nil || record == nil {
		return
	}

	if err := m.provider.Revoke(ctx, record.AccessToken); err != nil {
		m.logger.Warn(ctx, "Failed to revoke provider token on logout", "session_id", record.SessionID, "error", err.Error())
	}
	if _, err := m.sessions.DeleteBySessionID(ctx, record.SessionID); err != nil {
		m.logger.Warn(ctx, "Failed to remove session record on logout", "session_id", record.SessionID, "error", err.Error())
		return
	}
	m.logger.Info(ctx, "Session cleared", "session_id", record.SessionID, "user_id", record.UserID)
}

// CleanupExpiredSessions removes session records past their absolute lifetime
// or marked inactive, returning the number removed. It also republishes the
// active-session gauge.
func (m *SessionManager) CleanupExpiredSessions(ctx context.Context) (int, error) {
	records, err := m.sessions.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	now := m.now()
	removed := 0
	active := 0
	for i := range records {
		record := &records[i]
		if record.Active && !repository.ExpiredBefore(record, m.lifetime(), now) {
			active++
			continue
		}
		if _, err := m.sessions.DeleteBySessionID(ctx, record.SessionID); err != nil {
			m.logger.Warn(ctx, "Failed to sweep session record", "session_id", record.SessionID, "error", err.Error())
			continue
		}
		removed++
	}

	metrics.ActiveSessionsGauge.Set(float64(active))
	if removed > 0 {
		m.logger.Info(ctx, "Swept expired sessions", "removed", removed, "active", active)
	}
	return removed, nil
}

// refreshSingleFlight ensures at most one provider refresh per session is in
// flight; concurrent callers wait for and share the leader's outcome.
func (m *SessionManager) refreshSingleFlight(ctx context.Context, record *domain.SessionRecord) (*domain.SessionRecord, error) {
	m.refreshMu.Lock()
	if call, ok := m.refreshing[record.SessionID]; ok {
		m.refreshMu.Unlock()
		select {
		case <-call.done:
			metrics.IncrementSessionRefresh("shared")
			return call.record, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	m.refreshing[record.SessionID] = call
	m.refreshMu.Unlock()

	call.record, call.err = m.refresh(ctx, record)
	close(call.done)

	m.refreshMu.Lock()
	delete(m.refreshing, record.SessionID)
	m.refreshMu.Unlock()

	return call.record, call.err
}

// refresh trades the record's refresh token for a new pair and persists it.
// Failure is fatal to the session: the record is removed so a stale or revoked
// grant can never authenticate another request.
func (m *SessionManager) refresh(ctx context.Context, record *domain.SessionRecord) (*domain.SessionRecord, error) {
	tokens, err := m.provider.Refresh(ctx, record.RefreshToken)
	if err != nil {
		metrics.IncrementSessionRefresh("failure")
		m.logger.Warn(ctx, "Provider token refresh failed, destroying session", "session_id", record.SessionID, "error", err.Error())
		if _, delErr := m.sessions.DeleteBySessionID(ctx, record.SessionID); delErr != nil {
			m.logger.Error(ctx, "Failed to remove session after refresh failure", "session_id", record.SessionID, "error", delErr.Error())
		}
		return nil, fmt.Errorf("failed to refresh provider tokens: %w", err)
	}

	updated, err := m.sessions.UpdateTokens(ctx, record.SessionID, tokens)
	if err != nil {
		metrics.IncrementSessionRefresh("failure")
		return nil, fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}
	if updated == nil {
		metrics.IncrementSessionRefresh("failure")
		return nil, ErrNoActiveSession
	}

	// Keep the stored profile current while we hold a fresh access token.
	// Best effort only.
	if profile, profErr := m.provider.FetchProfile(ctx, tokens.AccessToken); profErr == nil {
		if _, syncErr := m.users.SyncProfile(ctx, profile); syncErr != nil {
			m.logger.Debug(ctx, "Failed to sync profile after refresh", "session_id", record.SessionID, "error", syncErr.Error())
		}
	}

	metrics.IncrementSessionRefresh("success")
	m.logger.Info(ctx, "Provider tokens refreshed", "session_id", record.SessionID, "new_expiry", tokens.Expiry)
	return updated, nil
}

func (m *SessionManager) needsRefresh(record *domain.SessionRecord, now time.Time) bool {
	buffer := time.Duration(m.cfgProvider.Get().Session.RefreshBufferSeconds) * time.Second
	return now.Add(buffer).After(record.TokenExpiry)
}

func (m *SessionManager) lifetime() time.Duration {
	hours := m.cfgProvider.Get().Session.LifetimeHours
	if hours <= 0 {
		hours = 168
	}
	return time.Duration(hours) * time.Hour
}

func (m *SessionManager) signToken(record *domain.SessionRecord, now time.Time) (string, error) {
	claims := sessionClaims{
		SessionID: record.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   record.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetime())),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfgProvider.Get().Session.SigningKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

func (m *SessionManager) parseRequestToken(r *http.Request) (*sessionClaims, error) {
	cookie, err := r.Cookie(m.cfgProvider.Get().Session.CookieName)
	if err != nil {
		return nil, ErrNoActiveSession
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(m.cfgProvider.Get().Session.SigningKey), nil
	})
	if err != nil || !token.Valid || claims.SessionID == "" {
		return nil, ErrNoActiveSession
	}
	return claims, nil
}

func (m *SessionManager) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	cfg := m.cfgProvider.Get().Session
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *SessionManager) clearSessionCookie(w http.ResponseWriter) {
	cfg := m.cfgProvider.Get().Session
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
