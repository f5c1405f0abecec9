package application

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/config"
	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
	"gitlab.com/chatforge/api/guilddesk-service/pkg/crypto"
)

// csrfTokenBytes is the entropy of one CSRF token (hex-encoded to 64 chars).
const csrfTokenBytes = 32

var (
	// ErrCSRFMissing is returned when the request carries no token in the
	// header, no cookie, or a cookie that cannot be decoded.
	ErrCSRFMissing = errors.New("csrf token missing")
	// ErrCSRFExpired is returned when the cookie-held token is past its lifetime.
	ErrCSRFExpired = errors.New("csrf token expired")
	// ErrCSRFMismatch is returned when the header and cookie tokens differ.
	ErrCSRFMismatch = errors.New("csrf token mismatch")
)

// csrfPayload is the cookie body: the token plus its issue time, so expiry is
// enforced without server-side state.
type csrfPayload struct {
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`
}

// CSRFService implements double-submit cookie CSRF protection. The token lives
// in an HTTP-only cookie and must be echoed back in a request header; a
// cross-site attacker can trigger the cookie but cannot read it to forge the
// header.
type CSRFService struct {
	cfgProvider config.Provider
	logger      domain.Logger

	now func() time.Time
}

// NewCSRFService creates a CSRFService.
func NewCSRFService(cfgProvider config.Provider, logger domain.Logger) *CSRFService {
	if cfgProvider == nil {
		panic("config provider cannot be nil in NewCSRFService")
	}
	if logger == nil {
		panic("logger cannot be nil in NewCSRFService")
	}
	return &CSRFService{
		cfgProvider: cfgProvider,
		logger:      logger,
		now:         time.Now,
	}
}

// GenerateToken mints a fresh token, sets it as the CSRF cookie on the
// response, and returns the token value for the client to echo in headers.
func (s *CSRFService) GenerateToken(ctx context.Context, w http.ResponseWriter) (string, error) {
	token, err := crypto.RandomHex(csrfTokenBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}

	payload, err := json.Marshal(csrfPayload{Token: token, IssuedAt: s.now().UTC()})
	if err != nil {
		return "", fmt.Errorf("failed to encode csrf payload: %w", err)
	}

	cfg := s.cfgProvider.Get().Session
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CSRFCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(payload),
		Path:     "/",
		MaxAge:   cfg.CSRFTokenExpirySecond,
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})

	s.logger.Debug(ctx, "Issued csrf token")
	return token, nil
}

// VerifyRequest checks the header token against the cookie token. Absence of
// either, an expired cookie, and a mismatch all fail verification.
func (s *CSRFService) VerifyRequest(ctx context.Context, r *http.Request) error {
	cfg := s.cfgProvider.Get().Session

	headerToken := r.Header.Get(cfg.CSRFHeaderName)
	if headerToken == "" {
		return ErrCSRFMissing
	}

	cookie, err := r.Cookie(cfg.CSRFCookieName)
	if err != nil {
		return ErrCSRFMissing
	}
	payload, err := s.decodeCookie(cookie.Value)
	if err != nil {
		s.logger.Debug(ctx, "Failed to decode csrf cookie", "error", err.Error())
		return ErrCSRFMissing
	}

	expiry := time.Duration(cfg.CSRFTokenExpirySecond) * time.Second
	if s.now().Sub(payload.IssuedAt) > expiry {
		return ErrCSRFExpired
	}

	// Equal length is a precondition of constant-time comparison; unequal
	// lengths cannot match anyway.
	if len(headerToken) != len(payload.Token) {
		return ErrCSRFMismatch
	}
	if subtle.ConstantTimeCompare([]byte(headerToken), []byte(payload.Token)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}

// GetToken returns the unexpired token currently held by the request's cookie,
// or ErrCSRFMissing/ErrCSRFExpired.
func (s *CSRFService) GetToken(r *http.Request) (string, error) {
	cfg := s.cfgProvider.Get().Session

	cookie, err := r.Cookie(cfg.CSRFCookieName)
	if err != nil {
		return "", ErrCSRFMissing
	}
	payload, err := s.decodeCookie(cookie.Value)
	if err != nil {
		return "", ErrCSRFMissing
	}
	expiry := time.Duration(cfg.CSRFTokenExpirySecond) * time.Second
	if s.now().Sub(payload.IssuedAt) > expiry {
		return "", ErrCSRFExpired
	}
	return payload.Token, nil
}

// ClearToken expires the CSRF cookie on the response.
func (s *CSRFService) ClearToken(w http.ResponseWriter) {
	cfg := s.cfgProvider.Get().Session
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CSRFCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *CSRFService) decodeCookie(value string) (*csrfPayload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode csrf cookie: %w", err)
	}
	var payload csrfPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse csrf cookie: %w", err)
	}
	if payload.Token == "" {
		return nil, errors.New("csrf cookie holds no token")
	}
	return &payload, nil
}
