package repository

import (
	"context"
	"math"
	"time"

	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
	"gitlab.com/chatforge/api/guilddesk-service/pkg/cachekeys"
)

// xpPerLevel scales the quadratic level curve: reaching level n costs
// xpPerLevel * n^2 total XP.
const xpPerLevel = 100

// MemberRepository manages per-guild member state. Members are addressed by
// the compound (guild_id, user_id) key and cached under it.
type MemberRepository struct {
	*Repository[domain.Member]
}

// NewMemberRepository creates a MemberRepository over the given store and cache.
func NewMemberRepository(store domain.Store, cache domain.CacheStore, logger domain.Logger, baseTTL time.Duration) *MemberRepository {
	return &MemberRepository{
		Repository: NewRepository[domain.Member](
			"members", store, cache, logger, baseTTL,
			func(filter domain.Filter) string {
				guildID, gok := filter["guild_id"].(string)
				userID, uok := filter["user_id"].(string)
				if gok && uok && len(filter) == 2 {
					return cachekeys.CompoundEntityKey("members", guildID, userID)
				}
				return ""
			},
			func(m *domain.Member) string {
				return cachekeys.CompoundEntityKey("members", m.GuildID, m.UserID)
			},
		),
	}
}

// Get returns the member record, or nil when the user has no state in the guild.
func (r *MemberRepository) Get(ctx context.Context, guildID, userID string) (*domain.Member, error) {
	return r.FindOne(ctx, domain.Filter{"guild_id": guildID, "user_id": userID})
}

// AddXP grants XP to a member, creating the record on first activity, and
// returns the updated record with the level recomputed.
func (r *MemberRepository) AddXP(ctx context.Context, guildID, userID string, amount int64) (*domain.Member, error) {
	existing, err := r.Get(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	filter := domain.Filter{"guild_id": guildID, "user_id": userID}

	if existing == nil {
		return r.Upsert(ctx, filter, domain.Update{
			"xp":         amount,
			"level":      LevelForXP(amount),
			"created_at": now,
			"updated_at": now,
		})
	}

	total := existing.XP + amount
	return r.UpdateOne(ctx, filter, domain.Update{
		"xp":         total,
		"level":      LevelForXP(total),
		"updated_at": now,
	})
}

// ListByGuild returns up to limit members of a guild (limit <= 0 means all).
func (r *MemberRepository) ListByGuild(ctx context.Context, guildID string, limit int) ([]domain.Member, error) {
	return r.Find(ctx, domain.Filter{"guild_id": guildID}, limit)
}

// Remove deletes a member record, reporting whether one existed.
func (r *MemberRepository) Remove(ctx context.Context, guildID, userID string) (bool, error) {
	deleted, err := r.DeleteOne(ctx, domain.Filter{"guild_id": guildID, "user_id": userID})
	if err != nil {
		return false, err
	}
	return deleted > 0, nil
}

// LevelForXP maps total XP to a level on a quadratic curve.
func LevelForXP(xp int64) int {
	if xp <= 0 {
		return 0
	}
	return int(math.Sqrt(float64(xp) / xpPerLevel))
}
