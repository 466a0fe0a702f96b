package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"edgealtar/internal/core"
	"edgealtar/internal/db"
	"edgealtar/internal/types"
)

// CatalogService serves gated catalog reads and rankings.
// Implemented by catalog.Service.
type CatalogService interface {
	List(ctx context.Context, id types.Identity, f db.SpellFilter) ([]types.Spell, error)
	Get(ctx context.Context, id types.Identity, spellID string) (*types.Spell, error)
	Related(ctx context.Context, id types.Identity, spellID string, limit int) ([]types.ScoredSpell, error)
	Recommend(ctx context.Context, id types.Identity, answers types.QuizAnswers, limit int) ([]types.ScoredSpell, error)
}

// FavoriteStore persists saved spells. Implemented by db.FavoriteRepository.
type FavoriteStore interface {
	List(ctx context.Context, userID string) ([]types.Favorite, error)
	Add(ctx context.Context, userID, spellID string) error
	Remove(ctx context.Context, userID, spellID string) error
}

// CatalogHandler serves spells, recommendations and favorites.
type CatalogHandler struct {
	catalog   CatalogService
	favorites FavoriteStore
	profiles  ProfileEnsurer
	validator *core.Validator
	logger    *slog.Logger
}

func NewCatalogHandler(
	catalog CatalogService,
	favorites FavoriteStore,
	profiles ProfileEnsurer,
	v *core.Validator,
	l *slog.Logger,
) *CatalogHandler {
	if l == nil {
		l = slog.Default()
	}
	return &CatalogHandler{
		catalog:   catalog,
		favorites: favorites,
		profiles:  profiles,
		validator: v,
		logger:    l,
	}
}

func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/spells", h.ListSpells)
	r.Get("/spells/{spellID}", h.GetSpell)
	r.Get("/spells/{spellID}/related", h.RelatedSpells)
	r.Post("/recommendations", h.Recommend)

	r.Get("/favorites", h.ListFavorites)
	r.Put("/favorites/{spellID}", h.AddFavorite)
	r.Delete("/favorites/{spellID}", h.RemoveFavorite)
}

// ListSpells handles GET /v1/spells?category=&element=.
func (h *CatalogHandler) ListSpells(w http.ResponseWriter, r *http.Request) {
	id, ok := core.RequireIdentity(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	spells, err := h.catalog.List(r.Context(), id, db.SpellFilter{
		Category: q.Get("category"),
		Element:  types.Element(q.Get("element")),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if spells == nil {
		spells = []types.Spell{}
	}
	core.JSON(w, r, http.StatusOK, types.ListResponse[types.Spell]{Data: spells})
}

// GetSpell handles GET /v1/spells/{spellID}.
func (h *CatalogHandler) GetSpell(w http.ResponseWriter, r *http.Request) {
	id, ok := core.RequireIdentity(w, r)
	if !ok {
		return
	}

	spell, err := h.catalog.Get(r.Context(), id, chi.URLParam(r, "spellID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, spell)
}

// RelatedSpells handles GET /v1/spells/{spellID}/related?limit=.
func (h *CatalogHandler) RelatedSpells(w http.ResponseWriter, r *http.Request) {
	id, ok := core.RequireIdentity(w, r)
	if !ok {
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	scored, err := h.catalog.Related(r.Context(), id, chi.URLParam(r, "spellID"), limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, types.ListResponse[types.ScoredSpell]{Data: nonNil(scored)})
}

// Recommend handles POST /v1/recommendations with quiz answers.
func (h *CatalogHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	id, ok := core.RequireIdentity(w, r)
	if !ok {
		return
	}

	var answers types.QuizAnswers
	if err := core.DecodeJSON(w, r, &answers); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(answers); err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus() == http.StatusBadRequest {
			err = types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidQuiz, appErr.Message, err, appErr.Details)
		}
		core.Error(w, r, err)
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	scored, err := h.catalog.Recommend(r.Context(), id, answers, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, types.ListResponse[types.ScoredSpell]{Data: nonNil(scored)})
}

// ListFavorites handles GET /v1/favorites.
func (h *CatalogHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	id, ok := core.RequireIdentity(w, r)
	if !ok {
		return
	}

	favorites, err := h.favorites.List(r.Context(), id.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, types.ListResponse[types.Favorite]{Data: favorites})
}

// AddFavorite handles PUT /v1/favorites/{spellID}. Saving twice is a no-op.
func (h *CatalogHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := core.RequireIdentity(w, r)
	if !ok {
		return
	}

	// favorites references profiles, so the row must exist first.
	if _, err := h.profiles.EnsureProfile(r.Context(), id.UserID, id.Email); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.favorites.Add(r.Context(), id.UserID, chi.URLParam(r, "spellID")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveFavorite handles DELETE /v1/favorites/{spellID}. Removing a spell
// that was never saved succeeds.
func (h *CatalogHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := core.RequireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.favorites.Remove(r.Context(), id.UserID, chi.URLParam(r, "spellID")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, types.NewAppError(types.ErrCodeValidationInvalidBody, "limit must be a positive integer", err)
	}
	return n, nil
}

func nonNil(s []types.ScoredSpell) []types.ScoredSpell {
	if s == nil {
		return []types.ScoredSpell{}
	}
	return s
}
