package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"edgealtar/internal/core"
	"edgealtar/internal/types"
)

// ProfileEnsurer returns the caller's profile, creating a free one on first
// sight. Implemented by db.ProfileRepository.
type ProfileEnsurer interface {
	EnsureProfile(ctx context.Context, userID, email string) (*types.Profile, error)
}

// AccessResponse is the client's polling view of its entitlement.
type AccessResponse struct {
	AccessLevel      types.AccessLevel      `json:"access_level"`
	SubscriptionType types.SubscriptionKind `json:"subscription_type,omitempty"`
	CancelAt         *time.Time             `json:"cancel_at,omitempty"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// ProfileHandler serves the caller's own profile state.
type ProfileHandler struct {
	profiles ProfileEnsurer
	logger   *slog.Logger
}

func NewProfileHandler(profiles ProfileEnsurer, l *slog.Logger) *ProfileHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ProfileHandler{profiles: profiles, logger: l}
}

func (h *ProfileHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me/access", h.GetAccess)
}

// GetAccess handles GET /v1/me/access. Clients poll it after checkout until
// the webhook has landed.
func (h *ProfileHandler) GetAccess(w http.ResponseWriter, r *http.Request) {
	id, ok := core.RequireIdentity(w, r)
	if !ok {
		return
	}

	profile, err := h.profiles.EnsureProfile(r.Context(), id.UserID, id.Email)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to load profile", "user_id", id.UserID, "error", err)
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	core.JSON(w, r, http.StatusOK, AccessResponse{
		AccessLevel:      profile.AccessLevel,
		SubscriptionType: profile.SubscriptionType,
		CancelAt:         profile.CancelAt,
		UpdatedAt:        profile.UpdatedAt,
	})
}
