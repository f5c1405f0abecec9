package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/middleware"
	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
	"gitlab.com/chatforge/api/guilddesk-service/internal/repository"
)

const maxMemberPageSize = 100

// GuildHandler serves the guild management API. Every endpoint runs behind the
// session middleware and only exposes guilds the caller owns.
type GuildHandler struct {
	guilds  *repository.GuildRepository
	members *repository.MemberRepository
	logger  domain.Logger
}

// NewGuildHandler creates a GuildHandler.
func NewGuildHandler(guilds *repository.GuildRepository, members *repository.MemberRepository, logger domain.Logger) *GuildHandler {
	if guilds == nil {
		panic("guild repository cannot be nil in NewGuildHandler")
	}
	if members == nil {
		panic("member repository cannot be nil in NewGuildHandler")
	}
	if logger == nil {
		panic("logger cannot be nil in NewGuildHandler")
	}
	return &GuildHandler{guilds: guilds, members: members, logger: logger}
}

// List returns every guild owned by the caller.
func (h *GuildHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		domain.NewErrorResponse(domain.ErrNoSession, "Authentication required", "").WriteJSON(w, http.StatusUnauthorized)
		return
	}

	guilds, err := h.guilds.ListByOwner(ctx, identity.UserID)
	if err != nil {
		h.writeStoreError(ctx, w, err)
		return
	}
	if guilds == nil {
		guilds = []domain.Guild{}
	}
	if err := writeJSON(w, http.StatusOK, guilds); err != nil {
		h.logger.Error(ctx, "Failed to write guild list response", "error", err.Error())
	}
}

// Get returns one guild's configuration.
func (h *GuildHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	guild, ok := h.ownedGuild(w, r)
	if !ok {
		return
	}
	if err := writeJSON(w, http.StatusOK, guild); err != nil {
		h.logger.Error(ctx, "Failed to write guild response", "error", err.Error())
	}
}

// updateSettingsRequest is the PATCH body for guild settings. Absent fields
// are left unchanged.
type updateSettingsRequest struct {
	Prefix  *string          `json:"prefix,omitempty"`
	Modules map[string]*bool `json:"modules,omitempty"`
}

// UpdateSettings patches the guild's prefix and module toggles.
func (h *GuildHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	guild, ok := h.ownedGuild(w, r)
	if !ok {
		return
	}

	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request body", err.Error()).WriteJSON(w, http.StatusBadRequest)
		return
	}

	patch := domain.Update{}
	if req.Prefix != nil {
		if *req.Prefix == "" || len(*req.Prefix) > 8 {
			domain.NewErrorResponse(domain.ErrBadRequest, "Invalid prefix", "Prefix must be 1 to 8 characters.").WriteJSON(w, http.StatusBadRequest)
			return
		}
		patch["prefix"] = *req.Prefix
	}
	if len(req.Modules) > 0 {
		modules := make(map[string]bool, len(guild.Modules)+len(req.Modules))
		for k, v := range guild.Modules {
			modules[k] = v
		}
		for name, enabled := range req.Modules {
			if enabled == nil {
				continue
			}
			modules[name] = *enabled
		}
		patch["modules"] = modules
	}
	if len(patch) == 0 {
		domain.NewErrorResponse(domain.ErrBadRequest, "Empty settings patch", "").WriteJSON(w, http.StatusBadRequest)
		return
	}

	updated, err := h.guilds.UpdateSettings(ctx, guild.GuildID, patch)
	if err != nil {
		h.writeStoreError(ctx, w, err)
		return
	}
	if updated == nil {
		domain.NewErrorResponse(domain.ErrNotFoundCode, "Guild not found", "").WriteJSON(w, http.StatusNotFound)
		return
	}
	if err := writeJSON(w, http.StatusOK, updated); err != nil {
		h.logger.Error(ctx, "Failed to write settings response", "error", err.Error())
	}
}

// Members returns the guild's member leaderboard page.
func (h *GuildHandler) Members(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	guild, ok := h.ownedGuild(w, r)
	if !ok {
		return
	}

	members, err := h.members.ListByGuild(ctx, guild.GuildID, maxMemberPageSize)
	if err != nil {
		h.writeStoreError(ctx, w, err)
		return
	}
	if members == nil {
		members = []domain.Member{}
	}
	if err := writeJSON(w, http.StatusOK, members); err != nil {
		h.logger.Error(ctx, "Failed to write member list response", "error", err.Error())
	}
}

// ownedGuild loads the path's guild and verifies the caller owns it. A guild
// the caller does not own is reported as not found rather than forbidden.
func (h *GuildHandler) ownedGuild(w http.ResponseWriter, r *http.Request) (*domain.Guild, bool) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		domain.NewErrorResponse(domain.ErrNoSession, "Authentication required", "").WriteJSON(w, http.StatusUnauthorized)
		return nil, false
	}

	guildID := r.PathValue("guildID")
	if guildID == "" {
		domain.NewErrorResponse(domain.ErrBadRequest, "Missing guild ID", "").WriteJSON(w, http.StatusBadRequest)
		return nil, false
	}

	guild, err := h.guilds.GetByID(ctx, guildID)
	if err != nil {
		h.writeStoreError(ctx, w, err)
		return nil, false
	}
	if guild == nil || guild.OwnerID != identity.UserID {
		domain.NewErrorResponse(domain.ErrNotFoundCode, "Guild not found", "").WriteJSON(w, http.StatusNotFound)
		return nil, false
	}
	return guild, true
}

func (h *GuildHandler) writeStoreError(ctx context.Context, w http.ResponseWriter, err error) {
	var dbErr *domain.DatabaseError
	if errors.As(err, &dbErr) && dbErr.Kind == domain.KindValidationFailed {
		domain.NewErrorResponse(domain.ErrBadRequest, "Invalid data", dbErr.Message).WriteJSON(w, http.StatusBadRequest)
		return
	}
	h.logger.Error(ctx, "Guild API data access failed", "error", err.Error())
	domain.NewErrorResponse(domain.ErrInternal, "Data access failed", "").WriteJSON(w, http.StatusInternalServerError)
}
