package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"edgealtar/internal/types"
)

// ProfileImport is one profile row carried over from the Firestore export.
type ProfileImport struct {
	UserID               string
	Email                string
	AccessLevel          types.AccessLevel
	StripeCustomerID     string
	StripeSubscriptionID string
	SubscriptionType     types.SubscriptionKind
	UpdatedAt            time.Time
}

// ImportRepository bulk-loads profiles with one round trip per batch.
type ImportRepository struct {
	db BatchSender
}

func NewImportRepository(db BatchSender) *ImportRepository {
	return &ImportRepository{db: db}
}

// upsertImportSQL leaves rows alone that were updated after the source
// document, so re-running an import never overwrites webhook-driven state.
const upsertImportSQL = `INSERT INTO profiles (
	    user_id, email, access_level, stripe_customer_id, stripe_subscription_id,
	    subscription_type, last_event_at, created_at, updated_at)
	VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $7, $7)
	ON CONFLICT (user_id) DO UPDATE
	SET email = COALESCE(EXCLUDED.email, profiles.email),
	    access_level = EXCLUDED.access_level,
	    stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, profiles.stripe_customer_id),
	    stripe_subscription_id = EXCLUDED.stripe_subscription_id,
	    subscription_type = EXCLUDED.subscription_type,
	    last_event_at = GREATEST(profiles.last_event_at, EXCLUDED.last_event_at),
	    updated_at = EXCLUDED.updated_at
	WHERE profiles.updated_at <= EXCLUDED.updated_at`

// UpsertBatch writes records in a single pgx.Batch and returns how many rows
// were inserted or updated.
func (r *ImportRepository) UpsertBatch(ctx context.Context, records []ProfileImport) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(upsertImportSQL,
			rec.UserID,
			rec.Email,
			string(rec.AccessLevel),
			rec.StripeCustomerID,
			rec.StripeSubscriptionID,
			string(rec.SubscriptionType),
			rec.UpdatedAt,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	written := 0
	for i := range records {
		tag, err := results.Exec()
		if err != nil {
			return written, types.NewAppError(types.ErrCodeInternalDB,
				fmt.Sprintf("failed to import profile %s", records[i].UserID), err)
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}
