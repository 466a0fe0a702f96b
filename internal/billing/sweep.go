package billing

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"edgealtar/internal/external"
	"edgealtar/internal/types"
)

// SweepConfig tunes AccessSweeper.
type SweepConfig struct {
	PageSize    int
	Concurrency int
}

// SweepReport summarises one run.
type SweepReport struct {
	Checked int
	Revoked int
	Failed  int
}

// AccessSweeper corrects access levels that webhooks missed by asking the
// processor for the state of every active recurring subscription.
type AccessSweeper struct {
	processor external.PaymentProcessor
	profiles  ProfileStore
	publisher AccessPublisher
	observer  SweepObserver
	cfg       SweepConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewAccessSweeper wires the sweeper. publisher and observer may be nil.
func NewAccessSweeper(
	processor external.PaymentProcessor,
	profiles ProfileStore,
	publisher AccessPublisher,
	observer SweepObserver,
	cfg SweepConfig,
	logger *slog.Logger,
) *AccessSweeper {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessSweeper{
		processor: processor,
		profiles:  profiles,
		publisher: publisher,
		observer:  observer,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Run pages through active subscriptions until exhausted. Individual lookup
// failures are counted and skipped; only a failed page read aborts the run.
func (s *AccessSweeper) Run(ctx context.Context) (SweepReport, error) {
	var (
		checked, revoked, failed atomic.Int64
		after                    string
	)

	report := func() SweepReport {
		return SweepReport{
			Checked: int(checked.Load()),
			Revoked: int(revoked.Load()),
			Failed:  int(failed.Load()),
		}
	}

	for {
		page, err := s.profiles.ListActiveSubscriptions(ctx, after, s.cfg.PageSize)
		if err != nil {
			return report(), err
		}
		if len(page) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Concurrency)
		for _, p := range page {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				checked.Add(1)
				ok, err := s.check(gctx, p)
				switch {
				case err != nil:
					failed.Add(1)
				case ok:
					revoked.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return report(), err
		}

		if len(page) < s.cfg.PageSize {
			break
		}
		after = page[len(page)-1].UserID
	}

	r := report()
	if s.observer != nil {
		s.observer.ObserveSweep(r.Checked, r.Revoked, r.Failed)
	}
	s.logger.InfoContext(ctx, "access sweep complete",
		"checked", r.Checked,
		"revoked", r.Revoked,
		"failed", r.Failed,
	)
	return r, nil
}

// check revokes access when the processor reports the subscription ended.
func (s *AccessSweeper) check(ctx context.Context, p types.Profile) (bool, error) {
	logger := s.logger.With("user_id", p.UserID, "subscription_id", p.StripeSubscriptionID)

	endedAt := s.now().UTC()
	sub, err := s.processor.GetSubscription(ctx, p.StripeSubscriptionID)
	switch {
	case external.IsStripeNotFound(err):
		logger.WarnContext(ctx, "subscription no longer exists at the processor")
	case err != nil:
		logger.WarnContext(ctx, "subscription lookup failed", "error", err)
		return false, err
	case !sub.Terminated():
		return false, nil
	default:
		endedAt = sub.TerminatedAt(endedAt)
	}

	userID, err := s.profiles.RevokeBySubscription(ctx, p.StripeSubscriptionID, endedAt)
	if err != nil {
		logger.ErrorContext(ctx, "sweep revoke failed", "error", err)
		return false, err
	}
	if userID == "" {
		// A newer event already moved the profile on.
		return false, nil
	}

	logger.InfoContext(ctx, "premium access revoked by sweep")
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, types.AccessChanged{
			UserID:      userID,
			AccessLevel: types.AccessFree,
			Source:      types.AccessSourceSweep,
			OccurredAt:  endedAt,
		}); err != nil {
			logger.WarnContext(ctx, "access change publish failed", "error", err)
		}
	}
	return true, nil
}
