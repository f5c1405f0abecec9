// Package identity implements the domain.IdentityProvider contract against
// the Discord OAuth2 endpoints.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/config"
	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
)

const (
	discordAPIEndpoint = "https://discord.com/api/v10"
	discordAuthURL     = "https://discord.com/oauth2/authorize"
	discordTokenURL    = "https://discord.com/api/oauth2/token" //nolint:gosec // API endpoint URL, not a credential
	discordRevokeURL   = "https://discord.com/api/oauth2/token/revoke"
)

// DiscordProvider handles Discord OAuth operations.
type DiscordProvider struct {
	oauthConfig *oauth2.Config
	logger      domain.Logger
	httpClient  *http.Client
	baseURL     string // Discord API base URL (overridable for tests)
	revokeURL   string
}

// NewDiscordProvider creates a Discord-backed identity provider from the
// application's OAuth configuration.
func NewDiscordProvider(cfgProvider config.Provider, logger domain.Logger) *DiscordProvider {
	oauthCfg := cfgProvider.Get().OAuth
	return &DiscordProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     oauthCfg.ClientID,
			ClientSecret: oauthCfg.ClientSecret,
			RedirectURL:  oauthCfg.RedirectURL,
			Scopes:       oauthCfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  discordAuthURL,
				TokenURL: discordTokenURL,
			},
		},
		logger:     logger,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    discordAPIEndpoint,
		revokeURL:  discordRevokeURL,
	}
}

// AuthCodeURL builds the Discord authorization URL for the given state value.
func (p *DiscordProvider) AuthCodeURL(state string) string {
	return p.oauthConfig.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token pair.
func (p *DiscordProvider) Exchange(ctx context.Context, code string) (*domain.OAuthTokens, error) {
	token, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	p.logger.Debug(ctx, "Exchanged authorization code for token", "expiry", token.Expiry)
	return tokensFromOAuth2(token), nil
}

// Refresh trades a refresh token for a new access/refresh pair.
func (p *DiscordProvider) Refresh(ctx context.Context, refreshToken string) (*domain.OAuthTokens, error) {
	source := p.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	newToken, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	p.logger.Debug(ctx, "Refreshed OAuth token", "new_expiry", newToken.Expiry)
	return tokensFromOAuth2(newToken), nil
}

// Revoke invalidates a token with Discord. Best effort; callers log failures
// rather than surfacing them.
func (p *DiscordProvider) Revoke(ctx context.Context, token string) error {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.oauthConfig.ClientID, p.oauthConfig.ClientSecret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("discord revoke returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// FetchProfile returns the current user for an access token.
func (p *DiscordProvider) FetchProfile(ctx context.Context, accessToken string) (*domain.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/users/@me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user profile: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("discord API returned status %d: %s", resp.StatusCode, string(body))
	}

	var profile domain.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode user profile: %w", err)
	}

	p.logger.Debug(ctx, "Fetched user profile from Discord", "discord_id", profile.UserID, "username", profile.Username)
	return &profile, nil
}

// SetBaseURLs overrides the Discord endpoints. Used by tests to point the
// provider at a local httptest server.
func (p *DiscordProvider) SetBaseURLs(apiURL string) {
	p.baseURL = apiURL
	p.revokeURL = apiURL + "/oauth2/token/revoke"
	p.oauthConfig.Endpoint.TokenURL = apiURL + "/oauth2/token"
	p.oauthConfig.Endpoint.AuthURL = apiURL + "/oauth2/authorize"
}

func tokensFromOAuth2(token *oauth2.Token) *domain.OAuthTokens {
	return &domain.OAuthTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
}
