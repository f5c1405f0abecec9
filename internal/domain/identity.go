package domain

import (
	"context"
	"time"
)

// OAuthTokens is one access/refresh token pair issued by the identity provider.
type OAuthTokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Profile is the identity provider's view of the current user.
type Profile struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// IdentityProvider is the OAuth boundary of the session layer: token exchange,
// refresh, revocation, and profile lookup. Failures during refresh are fatal
// to the session but never to the process.
type IdentityProvider interface {
	// AuthCodeURL builds the provider's authorization URL for the given
	// anti-forgery state value.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for a token pair.
	Exchange(ctx context.Context, code string) (*OAuthTokens, error)

	// Refresh trades a refresh token for a new token pair.
	Refresh(ctx context.Context, refreshToken string) (*OAuthTokens, error)

	// Revoke invalidates a token with the provider. Best effort.
	Revoke(ctx context.Context, token string) error

	// FetchProfile returns the current user for an access token.
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}
