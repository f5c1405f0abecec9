package repository

import (
	"context"
	"errors"
	"time"

	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
	"gitlab.com/chatforge/api/guilddesk-service/pkg/cachekeys"
)

// UserRepository manages chat-platform user records, cached under their user ID.
type UserRepository struct {
	*Repository[domain.User]
}

// NewUserRepository creates a UserRepository over the given store and cache.
func NewUserRepository(store domain.Store, cache domain.CacheStore, logger domain.Logger, baseTTL time.Duration) *UserRepository {
	return &UserRepository{
		Repository: NewRepository[domain.User](
			"users", store, cache, logger, baseTTL,
			func(filter domain.Filter) string {
				if id, ok := filter["user_id"].(string); ok && len(filter) == 1 {
					return cachekeys.EntityKey("users", id)
				}
				return ""
			},
			func(u *domain.User) string {
				return cachekeys.EntityKey("users", u.UserID)
			},
		),
	}
}

// GetByID returns the user record, or nil when unknown.
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	return r.FindOne(ctx, domain.Filter{"user_id": userID})
}

// SyncProfile upserts the user record from a freshly fetched identity profile,
// keeping the stored username and avatar current with the platform.
func (r *UserRepository) SyncProfile(ctx context.Context, profile *domain.Profile) (*domain.User, error) {
	existing, err := r.GetByID(ctx, profile.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if existing == nil {
		created, err := r.Create(ctx, &domain.User{
			UserID:    profile.UserID,
			Username:  profile.Username,
			Avatar:    profile.Avatar,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err == nil {
			return created, nil
		}
		var dbErr *domain.DatabaseError
		if !errors.As(err, &dbErr) || dbErr.Kind != domain.KindDuplicateKey {
			return nil, err
		}
		// Lost a create race; fall through and patch the winner's row.
	}

	return r.UpdateOne(ctx, domain.Filter{"user_id": profile.UserID}, domain.Update{
		"username":   profile.Username,
		"avatar":     profile.Avatar,
		"updated_at": now,
	})
}
