package repository

import (
	"context"
	"time"

	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
	"gitlab.com/chatforge/api/guilddesk-service/pkg/cachekeys"
)

// SessionRepository manages the persistent backing records of console logins.
// Records are cached under their session ID so the hot verify path avoids a
// store round trip.
type SessionRepository struct {
	*Repository[domain.SessionRecord]
}

// NewSessionRepository creates a SessionRepository over the given store and cache.
func NewSessionRepository(store domain.Store, cache domain.CacheStore, logger domain.Logger, baseTTL time.Duration) *SessionRepository {
	return &SessionRepository{
		Repository: NewRepository[domain.SessionRecord](
			"sessions", store, cache, logger, baseTTL,
			func(filter domain.Filter) string {
				if id, ok := filter["session_id"].(string); ok && len(filter) == 1 {
					return cachekeys.EntityKey("sessions", id)
				}
				return ""
			},
			func(s *domain.SessionRecord) string {
				return cachekeys.EntityKey("sessions", s.SessionID)
			},
		),
	}
}

// GetBySessionID returns the session record, or nil when it does not exist.
func (r *SessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	return r.FindOne(ctx, domain.Filter{"session_id": sessionID})
}

// UpdateTokens replaces the stored OAuth token pair after a refresh.
func (r *SessionRepository) UpdateTokens(ctx context.Context, sessionID string, tokens *domain.OAuthTokens) (*domain.SessionRecord, error) {
	return r.UpdateOne(ctx, domain.Filter{"session_id": sessionID}, domain.Update{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"token_expiry":  tokens.Expiry,
	})
}

// DeleteBySessionID removes a session record, reporting whether one existed.
func (r *SessionRepository) DeleteBySessionID(ctx context.Context, sessionID string) (bool, error) {
	deleted, err := r.DeleteOne(ctx, domain.Filter{"session_id": sessionID})
	if err != nil {
		return false, err
	}
	return deleted > 0, nil
}

// ListAll returns every session record. The store filter contract is equality
// only, so age-based sweeps list and filter in process; sweep cadence keeps the
// result set small.
func (r *SessionRepository) ListAll(ctx context.Context) ([]domain.SessionRecord, error) {
	return r.Find(ctx, domain.Filter{}, 0)
}

// CountActive returns the number of session records still marked active.
func (r *SessionRepository) CountActive(ctx context.Context) (int64, error) {
	return r.Count(ctx, domain.Filter{"active": true})
}

// ExpiredBefore reports whether a record's absolute lifetime has elapsed.
func ExpiredBefore(record *domain.SessionRecord, lifetime time.Duration, now time.Time) bool {
	return now.Sub(record.CreatedAt) > lifetime
}
