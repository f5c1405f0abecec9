package application

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/config"
	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/logger"
	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
	"gitlab.com/chatforge/api/guilddesk-service/internal/repository"
	"gitlab.com/chatforge/api/guilddesk-service/internal/testutil"
)

const testSessionCookie = "guilddesk_session"

// fakeIdentity is an in-memory domain.IdentityProvider with programmable
// refresh behavior.
type fakeIdentity struct {
	mu           sync.Mutex
	profile      domain.Profile
	refreshErr   error
	refreshDelay time.Duration
	refreshCalls int
	revoked      []string
}

func (f *fakeIdentity) AuthCodeURL(state string) string {
	return "https://id.example.test/authorize?state=" + state
}

func (f *fakeIdentity) Exchange(ctx context.Context, code string) (*domain.OAuthTokens, error) {
	return &domain.OAuthTokens{AccessToken: "access-0", RefreshToken: "refresh-0", Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeIdentity) Refresh(ctx context.Context, refreshToken string) (*domain.OAuthTokens, error) {
	f.mu.Lock()
	delay := f.refreshDelay
	f.refreshCalls++
	err := f.refreshErr
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return &domain.OAuthTokens{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeIdentity) Revoke(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, token)
	return nil
}

func (f *fakeIdentity) FetchProfile(ctx context.Context, accessToken string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile := f.profile
	return &profile, nil
}

func (f *fakeIdentity) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

type sessionHarness struct {
	manager *SessionManager
	idp     *fakeIdentity
	store   *testutil.MemStore
}

func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()

	provider := config.NewStaticProvider(&config.Config{
		Session: config.SessionConfig{
			SigningKey:           "test-signing-key-0123456789abcdef",
			CookieName:           testSessionCookie,
			LifetimeHours:        168,
			RefreshBufferSeconds: 300,
		},
	})

	store := testutil.NewMemStore()
	cache := newConnectedLocalCache(t)
	nop := logger.NewNop()
	sessions := repository.NewSessionRepository(store, cache, nop, time.Minute)
	users := repository.NewUserRepository(store, cache, nop, time.Minute)
	idp := &fakeIdentity{profile: domain.Profile{UserID: "u1", Username: "alice", Avatar: "av1"}}

	return &sessionHarness{
		manager: NewSessionManager(provider, sessions, users, idp, nop),
		idp:     idp,
		store:   store,
	}
}

// login creates a session with the given token expiry and returns the session
// cookie a browser would hold.
func (h *sessionHarness) login(t *testing.T, tokenExpiry time.Time) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	identity, err := h.manager.CreateSession(context.Background(), rec, &domain.OAuthTokens{
		AccessToken:  "access-0",
		RefreshToken: "refresh-0",
		Expiry:       tokenExpiry,
	})
	require.NoError(t, err)
	require.Equal(t, "u1", identity.UserID)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == testSessionCookie {
			return cookie
		}
	}
	t.Fatal("session cookie not set on response")
	return nil
}

func requestWithCookie(cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookie)
	return req
}

// getSession resolves the cookie against a throwaway response writer.
func (h *sessionHarness) getSession(cookie *http.Cookie) (*domain.SessionIdentity, error) {
	return h.manager.GetSession(context.Background(), httptest.NewRecorder(), requestWithCookie(cookie))
}

// clearedSessionCookie reports whether the response expired the session cookie.
func clearedSessionCookie(rec *httptest.ResponseRecorder) bool {
	for _, c := range rec.Result().Cookies() {
		if c.Name == testSessionCookie && c.MaxAge < 0 {
			return true
		}
	}
	return false
}

func TestCreateAndGetSession(t *testing.T) {
	h := newSessionHarness(t)
	cookie := h.login(t, time.Now().Add(time.Hour))

	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	identity, err := h.getSession(cookie)
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.UserID)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, "access-0", identity.AccessToken)
	assert.Equal(t, 0, h.idp.calls(), "fresh tokens must not be refreshed")
}

func TestGetSessionWithoutCookie(t *testing.T) {
	h := newSessionHarness(t)

	rec := httptest.NewRecorder()
	_, err := h.manager.GetSession(context.Background(), rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	require.ErrorIs(t, err, ErrNoActiveSession)
	assert.False(t, clearedSessionCookie(rec), "no cookie on the request means nothing to expire")
}

func TestGetSessionRejectsTamperedToken(t *testing.T) {
	h := newSessionHarness(t)
	cookie := h.login(t, time.Now().Add(time.Hour))
	cookie.Value += "tampered"

	rec := httptest.NewRecorder()
	_, err := h.manager.GetSession(context.Background(), rec, requestWithCookie(cookie))
	require.ErrorIs(t, err, ErrNoActiveSession)
	assert.True(t, clearedSessionCookie(rec), "an unverifiable cookie must be expired on the response")
}

func TestGetSessionClearsCookieWhenRecordIsGone(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()
	cookie := h.login(t, time.Now().Add(time.Hour))

	identity, err := h.getSession(cookie)
	require.NoError(t, err)

	deleted, err := h.manager.sessions.DeleteBySessionID(ctx, identity.SessionID)
	require.NoError(t, err)
	require.True(t, deleted)

	rec := httptest.NewRecorder()
	_, err = h.manager.GetSession(ctx, rec, requestWithCookie(cookie))
	require.ErrorIs(t, err, ErrNoActiveSession)
	assert.True(t, clearedSessionCookie(rec), "a cookie without a backing record must be expired so browsers stop replaying it")
}

func TestGetSessionRefreshesNearExpiryTokens(t *testing.T) {
	h := newSessionHarness(t)
	// Inside the 300s refresh buffer.
	cookie := h.login(t, time.Now().Add(time.Minute))

	identity, err := h.getSession(cookie)
	require.NoError(t, err)
	assert.Equal(t, 1, h.idp.calls())
	assert.Equal(t, "access-1", identity.AccessToken, "identity must carry the refreshed token")

	// The refreshed expiry is an hour out, so the next request does not refresh.
	_, err = h.getSession(cookie)
	require.NoError(t, err)
	assert.Equal(t, 1, h.idp.calls())
}

func TestRefreshFailureDestroysSession(t *testing.T) {
	h := newSessionHarness(t)
	h.idp.refreshErr = errors.New("invalid_grant")
	cookie := h.login(t, time.Now().Add(time.Minute))

	rec := httptest.NewRecorder()
	_, err := h.manager.GetSession(context.Background(), rec, requestWithCookie(cookie))
	require.ErrorIs(t, err, ErrSessionExpired)
	require.Equal(t, 0, h.store.Len("sessions"), "a session that cannot refresh must be removed")
	assert.True(t, clearedSessionCookie(rec))

	_, err = h.getSession(cookie)
	require.ErrorIs(t, err, ErrNoActiveSession)
}

func TestRefreshIsSingleFlight(t *testing.T) {
	h := newSessionHarness(t)
	h.idp.refreshDelay = 100 * time.Millisecond
	cookie := h.login(t, time.Now().Add(time.Minute))

	const concurrency = 8
	var wg sync.WaitGroup
	errs := make([]error, concurrency)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.getSession(cookie)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, 1, h.idp.calls(), "concurrent requests must share one refresh")
}

func TestSessionPastLifetimeIsRemoved(t *testing.T) {
	h := newSessionHarness(t)
	cookie := h.login(t, time.Now().Add(time.Hour))

	h.manager.now = func() time.Time { return time.Now().Add(169 * time.Hour) }

	_, err := h.getSession(cookie)
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 0, h.store.Len("sessions"))
}

func TestClearSessionRevokesAndDeletes(t *testing.T) {
	h := newSessionHarness(t)
	cookie := h.login(t, time.Now().Add(time.Hour))

	rec := httptest.NewRecorder()
	h.manager.ClearSession(context.Background(), rec, requestWithCookie(cookie))

	assert.Equal(t, []string{"access-0"}, h.idp.revoked)
	assert.Equal(t, 0, h.store.Len("sessions"))

	assert.True(t, clearedSessionCookie(rec), "logout must expire the session cookie")
}

func TestCleanupExpiredSessionsSweepsOldRecords(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()

	h.login(t, time.Now().Add(time.Hour))
	h.login(t, time.Now().Add(time.Hour))
	require.Equal(t, 2, h.store.Len("sessions"))

	h.manager.now = func() time.Time { return time.Now().Add(200 * time.Hour) }

	removed, err := h.manager.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, h.store.Len("sessions"))
}
