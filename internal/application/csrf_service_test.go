package application

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/config"
	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/logger"
)

const (
	testCSRFCookie = "guilddesk_csrf"
	testCSRFHeader = "X-CSRF-Token"
)

func newCSRFService(t *testing.T) *CSRFService {
	t.Helper()
	provider := config.NewStaticProvider(&config.Config{
		Session: config.SessionConfig{
			CSRFCookieName:        testCSRFCookie,
			CSRFHeaderName:        testCSRFHeader,
			CSRFTokenExpirySecond: 3600,
		},
	})
	return NewCSRFService(provider, logger.NewNop())
}

func issueToken(t *testing.T, svc *CSRFService) (string, *http.Cookie) {
	t.Helper()
	rec := httptest.NewRecorder()
	token, err := svc.GenerateToken(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, token, 64, "token is 32 random bytes hex-encoded")

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == testCSRFCookie {
			return token, cookie
		}
	}
	t.Fatal("csrf cookie not set on response")
	return "", nil
}

func TestGenerateTokenSetsHardenedCookie(t *testing.T) {
	svc := newCSRFService(t)
	_, cookie := issueToken(t, svc)

	assert.True(t, cookie.HttpOnly, "token cookie must be unreadable from scripts")
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, 3600, cookie.MaxAge)
}

func TestVerifyRequestAcceptsMatchingTokens(t *testing.T) {
	svc := newCSRFService(t)
	token, cookie := issueToken(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/guilds/1/settings", nil)
	req.AddCookie(cookie)
	req.Header.Set(testCSRFHeader, token)

	require.NoError(t, svc.VerifyRequest(context.Background(), req))
}

func TestVerifyRequestRejectsMissingHeader(t *testing.T) {
	svc := newCSRFService(t)
	_, cookie := issueToken(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(cookie)

	require.ErrorIs(t, svc.VerifyRequest(context.Background(), req), ErrCSRFMissing)
}

func TestVerifyRequestRejectsMissingCookie(t *testing.T) {
	svc := newCSRFService(t)
	token, _ := issueToken(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(testCSRFHeader, token)

	require.ErrorIs(t, svc.VerifyRequest(context.Background(), req), ErrCSRFMissing)
}

func TestVerifyRequestRejectsMismatchedToken(t *testing.T) {
	svc := newCSRFService(t)
	token, cookie := issueToken(t, svc)

	// Same length, different content.
	forged := strings.Repeat("0", len(token))
	if forged == token {
		forged = strings.Repeat("1", len(token))
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(cookie)
	req.Header.Set(testCSRFHeader, forged)

	require.ErrorIs(t, svc.VerifyRequest(context.Background(), req), ErrCSRFMismatch)
}

func TestVerifyRequestRejectsWrongLengthToken(t *testing.T) {
	svc := newCSRFService(t)
	token, cookie := issueToken(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(cookie)
	req.Header.Set(testCSRFHeader, token[:10])

	require.ErrorIs(t, svc.VerifyRequest(context.Background(), req), ErrCSRFMismatch)
}

func TestVerifyRequestRejectsExpiredToken(t *testing.T) {
	svc := newCSRFService(t)
	token, cookie := issueToken(t, svc)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(cookie)
	req.Header.Set(testCSRFHeader, token)

	require.ErrorIs(t, svc.VerifyRequest(context.Background(), req), ErrCSRFExpired)
}

func TestVerifyRequestRejectsGarbageCookie(t *testing.T) {
	svc := newCSRFService(t)
	token, _ := issueToken(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: testCSRFCookie, Value: "not-base64!!"})
	req.Header.Set(testCSRFHeader, token)

	require.ErrorIs(t, svc.VerifyRequest(context.Background(), req), ErrCSRFMissing)
}

func TestGetTokenRoundTrips(t *testing.T) {
	svc := newCSRFService(t)
	token, cookie := issueToken(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/csrf", nil)
	req.AddCookie(cookie)

	got, err := svc.GetToken(req)
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestClearTokenExpiresCookie(t *testing.T) {
	svc := newCSRFService(t)
	rec := httptest.NewRecorder()

	svc.ClearToken(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, testCSRFCookie, cookies[0].Name)
	assert.Negative(t, cookies[0].MaxAge)
}
