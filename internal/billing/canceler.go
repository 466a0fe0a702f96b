package billing

import (
	"context"
	"log/slog"
	"time"

	"edgealtar/internal/external"
	"edgealtar/internal/types"
)

// Canceler schedules end-of-period cancellation. The local access level is
// left alone; the downgrade arrives with customer.subscription.deleted.
type Canceler struct {
	processor external.PaymentProcessor
	profiles  ProfileStore
	logger    *slog.Logger
}

func NewCanceler(processor external.PaymentProcessor, profiles ProfileStore, logger *slog.Logger) *Canceler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Canceler{processor: processor, profiles: profiles, logger: logger}
}

// Cancel returns the moment access will end.
func (c *Canceler) Cancel(ctx context.Context, userID string) (time.Time, error) {
	profile, err := c.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}

	if profile.SubscriptionType == types.SubscriptionLifetime {
		return time.Time{}, types.NewAppError(types.ErrCodeOperationLifetimeCancel,
			"lifetime access cannot be cancelled", nil)
	}
	if profile.StripeSubscriptionID == "" {
		return time.Time{}, types.NewAppError(types.ErrCodePreconditionNoSubscription,
			"no active subscription on file", nil)
	}

	sub, err := c.processor.CancelAtPeriodEnd(ctx, profile.StripeSubscriptionID)
	if err != nil {
		c.logger.ErrorContext(ctx, "cancel at period end failed",
			"user_id", userID,
			"subscription_id", profile.StripeSubscriptionID,
			"error", err,
		)
		return time.Time{}, err
	}

	cancelAt := sub.EffectiveCancelAt()
	if cancelAt.IsZero() {
		return time.Time{}, types.NewAppError(types.ErrCodeUpstreamStripe,
			"processor did not report a billing period end", nil)
	}

	// Stripe already holds the schedule; the local copy is informational.
	if err := c.profiles.MarkCancelScheduled(ctx, userID, cancelAt); err != nil {
		c.logger.WarnContext(ctx, "failed to record scheduled cancellation",
			"user_id", userID,
			"error", err,
		)
	}

	c.logger.InfoContext(ctx, "subscription scheduled to cancel",
		"user_id", userID,
		"subscription_id", sub.ID,
		"cancel_at", cancelAt,
	)
	return cancelAt, nil
}
