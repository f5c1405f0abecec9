package domain

import "time"

// Guild is the per-server configuration record for the bot.
type Guild struct {
	GuildID   string          `json:"guild_id"`
	Name      string          `json:"name"`
	OwnerID   string          `json:"owner_id"`
	Prefix    string          `json:"prefix"`
	Modules   map[string]bool `json:"modules"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// User is a chat-platform user known to the bot or console.
type User struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member is the per-guild state of a user. It is addressed by the compound
// natural key (guild_id, user_id).
type Member struct {
	GuildID   string    `json:"guild_id"`
	UserID    string    `json:"user_id"`
	XP        int64     `json:"xp"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionRecord is the persistent backing record of a console login. It holds
// the third-party OAuth tokens; the signed session token handed to the browser
// only references it by SessionID.
type SessionRecord struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenExpiry  time.Time `json:"token_expiry"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionIdentity is the resolved caller identity a verified session yields.
// It is injected into the request context by the session middleware.
type SessionIdentity struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	Avatar      string `json:"avatar"`
	SessionID   string `json:"session_id"`
	AccessToken string `json:"-"`
}
