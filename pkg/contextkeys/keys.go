package contextkeys

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for storing and retrieving a request ID.
	RequestIDKey contextKey = "request_id"

	// UserIDKey is the context key for storing and retrieving the authenticated user ID.
	UserIDKey contextKey = "user_id"

	// GuildIDKey is the context key for storing and retrieving the guild ID a request targets.
	GuildIDKey contextKey = "guild_id"

	// SessionIDKey is the context key for storing and retrieving the session ID backing a request.
	SessionIDKey contextKey = "session_id"

	// IdentityKey is the context key for storing the resolved session identity struct.
	IdentityKey contextKey = "session_identity"
)

// String makes contextKey satisfy fmt.Stringer to help with debugging/logging of keys themselves.
func (c contextKey) String() string {
	return string(c)
}
