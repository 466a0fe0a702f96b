package catalog

import (
	"sort"
	"strings"

	"edgealtar/internal/types"
)

// Related-spell weights.
const (
	relatedCategory  = 3
	relatedIntent    = 2
	relatedElement   = 1
	relatedMoonPhase = 1
)

// Quiz weights.
const (
	quizIntent     = 3
	quizElement    = 2
	quizMoonPhase  = 1
	quizExperience = 1
)

// RankRelated scores every other spell against target and returns the top n
// with a positive score.
func RankRelated(target types.Spell, spells []types.Spell, n int) []types.ScoredSpell {
	scored := make([]types.ScoredSpell, 0, len(spells))
	for _, s := range spells {
		if s.ID == target.ID {
			continue
		}
		score := 0
		if s.Category != "" && s.Category == target.Category {
			score += relatedCategory
		}
		if sameFold(s.Intent, target.Intent) {
			score += relatedIntent
		}
		if s.Element != "" && s.Element == target.Element {
			score += relatedElement
		}
		if s.MoonPhase != "" && s.MoonPhase == target.MoonPhase {
			score += relatedMoonPhase
		}
		if score > 0 {
			scored = append(scored, types.ScoredSpell{Spell: s, Score: score})
		}
	}
	return top(scored, n)
}

// RankQuiz scores spells against quiz answers. Spells worked in any moon
// phase match every phase answer.
func RankQuiz(a types.QuizAnswers, spells []types.Spell, n int) []types.ScoredSpell {
	scored := make([]types.ScoredSpell, 0, len(spells))
	for _, s := range spells {
		score := 0
		if sameFold(s.Intent, a.Intent) {
			score += quizIntent
		}
		if a.Element != "" && s.Element == a.Element {
			score += quizElement
		}
		if a.MoonPhase != "" && (s.MoonPhase == a.MoonPhase || s.MoonPhase == types.MoonAny) {
			score += quizMoonPhase
		}
		if a.Experience != "" && s.Difficulty == a.Experience {
			score += quizExperience
		}
		if score > 0 {
			scored = append(scored, types.ScoredSpell{Spell: s, Score: score})
		}
	}
	return top(scored, n)
}

// top orders by score, then name, then id so ties are stable across calls.
func top(scored []types.ScoredSpell, n int) []types.ScoredSpell {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Spell.Name != b.Spell.Name {
			return a.Spell.Name < b.Spell.Name
		}
		return a.Spell.ID < b.Spell.ID
	})
	if n > 0 && len(scored) > n {
		scored = scored[:n]
	}
	return scored
}

func sameFold(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
