// Package catalog serves the spell catalog with premium gating applied, and
// ranks spells for the related-spells and quiz recommendation features.
package catalog

import (
	"context"
	"log/slog"

	"edgealtar/internal/db"
	"edgealtar/internal/types"
)

// DefaultLimit caps ranked results when the caller does not ask for a size.
const DefaultLimit = 6

const maxLimit = 24

// SpellStore reads catalog rows. Implemented by db.SpellRepository.
type SpellStore interface {
	List(ctx context.Context, f db.SpellFilter) ([]types.Spell, error)
	GetByID(ctx context.Context, id string) (*types.Spell, error)
}

// AccessReader resolves the caller's profile, creating it on first sight.
// Implemented by db.ProfileRepository.
type AccessReader interface {
	EnsureProfile(ctx context.Context, userID, email string) (*types.Profile, error)
}

// Service applies access gating on top of the spell store.
type Service struct {
	spells   SpellStore
	profiles AccessReader
	logger   *slog.Logger
}

func NewService(spells SpellStore, profiles AccessReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{spells: spells, profiles: profiles, logger: logger}
}

// List returns every spell matching f. Premium spells come back as teasers
// for free callers.
func (s *Service) List(ctx context.Context, id types.Identity, f db.SpellFilter) ([]types.Spell, error) {
	premium, err := s.isPremium(ctx, id)
	if err != nil {
		return nil, err
	}
	spells, err := s.spells.List(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range spells {
		spells[i] = Gate(spells[i], premium)
	}
	return spells, nil
}

// Get returns the full spell, or permission_premium_required when a free
// caller asks for a premium spell.
func (s *Service) Get(ctx context.Context, id types.Identity, spellID string) (*types.Spell, error) {
	spell, err := s.spells.GetByID(ctx, spellID)
	if err != nil {
		return nil, err
	}
	if !spell.IsPremium {
		return spell, nil
	}
	premium, err := s.isPremium(ctx, id)
	if err != nil {
		return nil, err
	}
	if !premium {
		s.logger.InfoContext(ctx, "premium spell requested by free user",
			"user_id", id.UserID,
			"spell_id", spellID,
		)
		return nil, types.NewAppErrorWithDetails(types.ErrCodePermissionPremiumRequired,
			"this spell requires a premium subscription", nil,
			map[string]any{"spell_id": spellID})
	}
	return spell, nil
}

// Related ranks the catalog against one spell.
func (s *Service) Related(ctx context.Context, id types.Identity, spellID string, limit int) ([]types.ScoredSpell, error) {
	target, err := s.spells.GetByID(ctx, spellID)
	if err != nil {
		return nil, err
	}
	all, err := s.spells.List(ctx, db.SpellFilter{})
	if err != nil {
		return nil, err
	}
	premium, err := s.isPremium(ctx, id)
	if err != nil {
		return nil, err
	}
	return gateScored(RankRelated(*target, all, clampLimit(limit)), premium), nil
}

// Recommend ranks the catalog against quiz answers.
func (s *Service) Recommend(ctx context.Context, id types.Identity, answers types.QuizAnswers, limit int) ([]types.ScoredSpell, error) {
	all, err := s.spells.List(ctx, db.SpellFilter{})
	if err != nil {
		return nil, err
	}
	premium, err := s.isPremium(ctx, id)
	if err != nil {
		return nil, err
	}
	return gateScored(RankQuiz(answers, all, clampLimit(limit)), premium), nil
}

func (s *Service) isPremium(ctx context.Context, id types.Identity) (bool, error) {
	profile, err := s.profiles.EnsureProfile(ctx, id.UserID, id.Email)
	if err != nil {
		return false, err
	}
	return profile.IsPremium(), nil
}

// Gate strips the body from premium spells for free callers.
func Gate(spell types.Spell, premium bool) types.Spell {
	if spell.IsPremium && !premium {
		spell.Body = ""
		spell.Locked = true
	}
	return spell
}

func gateScored(scored []types.ScoredSpell, premium bool) []types.ScoredSpell {
	for i := range scored {
		scored[i].Spell = Gate(scored[i].Spell, premium)
	}
	return scored
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > maxLimit:
		return maxLimit
	}
	return n
}
