package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"edgealtar/internal/types"
)

// SpellRepository reads the spell catalog.
type SpellRepository struct {
	db DBTX
}

func NewSpellRepository(db DBTX) *SpellRepository {
	return &SpellRepository{db: db}
}

const spellColumns = `id, name, category, intent, element, moon_phase, difficulty, is_premium, summary, body`

func scanSpell(row pgx.Row) (*types.Spell, error) {
	var s types.Spell
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Category,
		&s.Intent,
		&s.Element,
		&s.MoonPhase,
		&s.Difficulty,
		&s.IsPremium,
		&s.Summary,
		&s.Body,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SpellFilter narrows List. Zero values match everything.
type SpellFilter struct {
	Category string
	Element  types.Element
}

// List returns spells ordered by name.
func (r *SpellRepository) List(ctx context.Context, f SpellFilter) ([]types.Spell, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+spellColumns+`
		 FROM spells
		 WHERE ($1 = '' OR category = $1)
		   AND ($2 = '' OR element = $2)
		 ORDER BY name`,
		f.Category,
		string(f.Element),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list spells", err)
	}
	defer rows.Close()

	var spells []types.Spell
	for rows.Next() {
		s, err := scanSpell(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan spell", err)
		}
		spells = append(spells, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating spells", err)
	}
	return spells, nil
}

// GetByID returns the spell or not_found_spell.
func (r *SpellRepository) GetByID(ctx context.Context, id string) (*types.Spell, error) {
	s, err := scanSpell(r.db.QueryRow(ctx,
		`SELECT `+spellColumns+` FROM spells WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSpell, "spell not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve spell", err)
	}
	return s, nil
}
