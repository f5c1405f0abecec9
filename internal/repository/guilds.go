package repository

import (
	"context"
	"errors"
	"time"

	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
	"gitlab.com/chatforge/api/guilddesk-service/pkg/cachekeys"
)

const defaultPrefix = "!"

// GuildRepository manages per-server bot configuration records. Guilds are
// cached individually under their guild ID.
type GuildRepository struct {
	*Repository[domain.Guild]
}

// NewGuildRepository creates a GuildRepository over the given store and cache.
func NewGuildRepository(store domain.Store, cache domain.CacheStore, logger domain.Logger, baseTTL time.Duration) *GuildRepository {
	return &GuildRepository{
		Repository: NewRepository[domain.Guild](
			"guilds", store, cache, logger, baseTTL,
			func(filter domain.Filter) string {
				if id, ok := filter["guild_id"].(string); ok && len(filter) == 1 {
					return cachekeys.EntityKey("guilds", id)
				}
				return ""
			},
			func(g *domain.Guild) string {
				return cachekeys.EntityKey("guilds", g.GuildID)
			},
		),
	}
}

// GetByID returns the guild record, or nil when the guild is unknown.
func (r *GuildRepository) GetByID(ctx context.Context, guildID string) (*domain.Guild, error) {
	return r.FindOne(ctx, domain.Filter{"guild_id": guildID})
}

// GetOrCreate returns the guild record, creating it with defaults when the bot
// sees a guild for the first time. A concurrent create losing the uniqueness
// race falls back to reading the winner's row.
func (r *GuildRepository) GetOrCreate(ctx context.Context, guildID, name, ownerID string) (*domain.Guild, error) {
	existing, err := r.GetByID(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	created, err := r.Create(ctx, &domain.Guild{
		GuildID:   guildID,
		Name:      name,
		OwnerID:   ownerID,
		Prefix:    defaultPrefix,
		Modules:   map[string]bool{},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		var dbErr *domain.DatabaseError
		if errors.As(err, &dbErr) && dbErr.Kind == domain.KindDuplicateKey {
			return r.GetByID(ctx, guildID)
		}
		return nil, err
	}
	return created, nil
}

// UpdateSettings patches guild settings fields, returning the updated record
// or nil when the guild is unknown.
func (r *GuildRepository) UpdateSettings(ctx context.Context, guildID string, patch domain.Update) (*domain.Guild, error) {
	merged := make(domain.Update, len(patch)+1)
	for k, v := range patch {
		merged[k] = v
	}
	merged["updated_at"] = time.Now().UTC()
	return r.UpdateOne(ctx, domain.Filter{"guild_id": guildID}, merged)
}

// SetModule toggles one bot module for the guild. The modules map is stored as
// a whole JSON object, so this is a read-modify-write of the current record.
func (r *GuildRepository) SetModule(ctx context.Context, guildID, module string, enabled bool) (*domain.Guild, error) {
	guild, err := r.GetByID(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if guild == nil {
		return nil, nil
	}

	modules := make(map[string]bool, len(guild.Modules)+1)
	for k, v := range guild.Modules {
		modules[k] = v
	}
	modules[module] = enabled

	return r.UpdateSettings(ctx, guildID, domain.Update{"modules": modules})
}

// ListByOwner returns every guild owned by the given user.
func (r *GuildRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Guild, error) {
	return r.Find(ctx, domain.Filter{"owner_id": ownerID}, 0)
}
