package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"edgealtar/internal/types"
)

// pgForeignKeyViolation is the SQLSTATE for a missing referenced row.
const pgForeignKeyViolation = "23503"

// FavoriteRepository manages the favorites join table. Add and Remove are
// idempotent.
type FavoriteRepository struct {
	db DBTX
}

func NewFavoriteRepository(db DBTX) *FavoriteRepository {
	return &FavoriteRepository{db: db}
}

// List returns the user's favorites, newest first.
func (r *FavoriteRepository) List(ctx context.Context, userID string) ([]types.Favorite, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, spell_id, created_at
		 FROM favorites
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list favorites", err)
	}
	defer rows.Close()

	favorites := []types.Favorite{}
	for rows.Next() {
		var f types.Favorite
		if err := rows.Scan(&f.UserID, &f.SpellID, &f.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan favorite", err)
		}
		favorites = append(favorites, f)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating favorites", err)
	}
	return favorites, nil
}

// Add saves a spell for the user. An unknown spell is not_found_spell.
func (r *FavoriteRepository) Add(ctx context.Context, userID, spellID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO favorites (user_id, spell_id, created_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id, spell_id) DO NOTHING`,
		userID,
		spellID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return types.NewAppError(types.ErrCodeNotFoundSpell, "spell not found", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to add favorite", err)
	}
	return nil
}

// Remove deletes a saved spell. Removing a missing favorite succeeds.
func (r *FavoriteRepository) Remove(ctx context.Context, userID, spellID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND spell_id = $2`,
		userID,
		spellID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to remove favorite", err)
	}
	return nil
}
