package billing

import (
	"context"
	"time"

	"edgealtar/internal/types"
)

// ProfileStore is the profile persistence the billing flows need.
// Implemented by db.ProfileRepository.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*types.Profile, error)
	GrantPremium(ctx context.Context, grant types.PremiumGrant) (bool, error)
	RevokeBySubscription(ctx context.Context, subscriptionID string, eventAt time.Time) (string, error)
	MarkCancelScheduled(ctx context.Context, userID string, cancelAt time.Time) error
	ListActiveSubscriptions(ctx context.Context, afterUserID string, limit int) ([]types.Profile, error)
}

// EventLedger remembers processed billing events. Implemented by the cache
// package.
type EventLedger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// AccessPublisher announces access-level changes. Implemented by
// queue.AccessEventPublisher.
type AccessPublisher interface {
	Publish(ctx context.Context, evt types.AccessChanged) error
}

// EventObserver receives one call per reconciled event.
type EventObserver interface {
	ObserveEvent(eventType, outcome string, duration time.Duration)
}

// SweepObserver receives the totals of each sweep run.
type SweepObserver interface {
	ObserveSweep(checked, revoked, failed int)
}
