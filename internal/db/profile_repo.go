package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"edgealtar/internal/types"
)

// ProfileRepository manages the profiles table, the access-level projection
// used for gating.
//
// Key invariants:
//   - GrantPremium and RevokeBySubscription use last_event_at as an optimistic
//     lock so replayed and out-of-order processor events are no-ops.
//   - Lifetime grants are never downgraded.
type ProfileRepository struct {
	db     DBTX
	logger *slog.Logger
}

// NewProfileRepository creates a ProfileRepository backed by the given
// database connection (pool or transaction).
func NewProfileRepository(db DBTX, logger *slog.Logger) *ProfileRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileRepository{db: db, logger: logger}
}

// profileColumns is the column list shared by every profile query.
const profileColumns = `user_id, email, access_level, stripe_customer_id, stripe_subscription_id,
	subscription_type, cancel_at, last_event_at, created_at, updated_at`

func scanProfile(row pgx.Row) (*types.Profile, error) {
	var (
		p              types.Profile
		email          *string
		customerID     *string
		subscriptionID *string
		kind           *string
	)
	err := row.Scan(
		&p.UserID,
		&email,
		&p.AccessLevel,
		&customerID,
		&subscriptionID,
		&kind,
		&p.CancelAt,
		&p.LastEventAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if email != nil {
		p.Email = *email
	}
	if customerID != nil {
		p.StripeCustomerID = *customerID
	}
	if subscriptionID != nil {
		p.StripeSubscriptionID = *subscriptionID
	}
	if kind != nil {
		p.SubscriptionType = types.SubscriptionKind(*kind)
	}
	return &p, nil
}

// GetByUserID returns the profile or not_found_profile.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*types.Profile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`,
		userID,
	)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve profile", err)
	}
	return p, nil
}

// EnsureProfile returns the caller's profile, creating a free one on first
// read. An email is filled in only when none is stored yet.
func (r *ProfileRepository) EnsureProfile(ctx context.Context, userID, email string) (*types.Profile, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO profiles (user_id, email, access_level, created_at, updated_at)
		 VALUES ($1, NULLIF($2, ''), 'free', NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET email = COALESCE(profiles.email, EXCLUDED.email)
		 RETURNING `+profileColumns,
		userID,
		email,
	)
	p, err := scanProfile(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to ensure profile", err)
	}
	return p, nil
}

// GrantPremium upserts the profile to premium. It returns false and leaves
// the row as is when the stored last_event_at is newer than the grant, or
// when the same event id was already applied.
//
// An existing lifetime grant keeps its kind and subscription id.
func (r *ProfileRepository) GrantPremium(ctx context.Context, g types.PremiumGrant) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO profiles (
		     user_id, email, access_level, stripe_customer_id, stripe_subscription_id,
		     subscription_type, cancel_at, last_event_id, last_event_at, created_at, updated_at)
		 VALUES ($1, NULLIF($2, ''), 'premium', NULLIF($3, ''), NULLIF($4, ''), $5, NULL, NULLIF($6, ''), $7, NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET email = COALESCE(EXCLUDED.email, profiles.email),
		     access_level = 'premium',
		     stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, profiles.stripe_customer_id),
		     stripe_subscription_id = CASE WHEN profiles.subscription_type = 'lifetime'
		                                   THEN profiles.stripe_subscription_id
		                                   ELSE EXCLUDED.stripe_subscription_id END,
		     subscription_type = CASE WHEN profiles.subscription_type = 'lifetime'
		                              THEN profiles.subscription_type
		                              ELSE EXCLUDED.subscription_type END,
		     cancel_at = NULL,
		     last_event_id = EXCLUDED.last_event_id,
		     last_event_at = EXCLUDED.last_event_at,
		     updated_at = NOW()
		 WHERE (profiles.last_event_at IS NULL OR profiles.last_event_at <= EXCLUDED.last_event_at)
		   AND (EXCLUDED.last_event_id IS NULL OR profiles.last_event_id IS DISTINCT FROM EXCLUDED.last_event_id)`,
		g.UserID,
		g.Email,
		g.StripeCustomerID,
		g.StripeSubscriptionID,
		string(g.Kind),
		g.EventID,
		g.EventAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to grant premium access", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.InfoContext(ctx, "premium grant ignored: stale or already applied",
			slog.String("user_id", g.UserID),
			slog.String("event_id", g.EventID),
			slog.Time("event_at", g.EventAt),
		)
		return false, nil
	}
	return true, nil
}

// RevokeBySubscription downgrades the profile whose stored subscription id
// equals subscriptionID. It returns the affected user id, or "" when no
// recurring profile carries that id or the row has seen a newer event.
func (r *ProfileRepository) RevokeBySubscription(ctx context.Context, subscriptionID string, eventAt time.Time) (string, error) {
	var userID string
	err := r.db.QueryRow(ctx,
		`UPDATE profiles
		 SET access_level = 'free',
		     stripe_subscription_id = NULL,
		     subscription_type = NULL,
		     cancel_at = NULL,
		     last_event_at = $2,
		     updated_at = NOW()
		 WHERE stripe_subscription_id = $1
		   AND subscription_type IS DISTINCT FROM 'lifetime'
		   AND (last_event_at IS NULL OR last_event_at <= $2)
		 RETURNING user_id`,
		subscriptionID,
		eventAt,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to revoke premium access", err)
	}
	return userID, nil
}

// MarkCancelScheduled records when a pending cancellation takes effect.
// The access level is left unchanged.
func (r *ProfileRepository) MarkCancelScheduled(ctx context.Context, userID string, cancelAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET cancel_at = $2, updated_at = NOW() WHERE user_id = $1`,
		userID,
		cancelAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record scheduled cancellation", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	return nil
}

// ListActiveSubscriptions returns premium recurring profiles ordered by
// user_id, starting after afterUserID. Pass "" for the first page.
func (r *ProfileRepository) ListActiveSubscriptions(ctx context.Context, afterUserID string, limit int) ([]types.Profile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+profileColumns+`
		 FROM profiles
		 WHERE access_level = 'premium'
		   AND stripe_subscription_id IS NOT NULL
		   AND subscription_type IS DISTINCT FROM 'lifetime'
		   AND user_id > $1
		 ORDER BY user_id
		 LIMIT $2`,
		afterUserID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active subscriptions", err)
	}
	defer rows.Close()

	var profiles []types.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan profile", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating profiles", err)
	}
	return profiles, nil
}
