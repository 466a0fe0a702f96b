package external

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// StubSecretKey selects StubProcessor in local mode.
const StubSecretKey = "sk_stub"

// StubProcessor implements PaymentProcessor without network access so the
// service can boot locally without Stripe credentials. Sessions point at a
// local URL and subscriptions always report an active monthly period.
type StubProcessor struct {
	logger *slog.Logger
	now    func() time.Time
	seq    atomic.Int64
}

// NewStubProcessor creates a StubProcessor.
func NewStubProcessor(logger *slog.Logger) *StubProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubProcessor{logger: logger, now: time.Now}
}

func (s *StubProcessor) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	id := fmt.Sprintf("cs_stub_%d", s.seq.Add(1))
	s.logger.InfoContext(ctx, "stub: CreateCheckoutSession called",
		"session_id", id,
		"user_id", p.ClientReferenceID,
		"mode", p.Mode,
	)
	return &CheckoutSession{
		ID:                id,
		URL:               "https://checkout.stub.local/" + id,
		Mode:              p.Mode,
		Status:            "open",
		ClientReferenceID: p.ClientReferenceID,
		CustomerID:        p.CustomerID,
		CustomerEmail:     p.CustomerEmail,
		Metadata:          p.Metadata,
	}, nil
}

func (s *StubProcessor) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	s.logger.InfoContext(ctx, "stub: GetCheckoutSession called", "session_id", sessionID)
	return &CheckoutSession{ID: sessionID, Status: "complete", PaymentStatus: "paid"}, nil
}

func (s *StubProcessor) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error) {
	s.logger.InfoContext(ctx, "stub: CancelAtPeriodEnd called", "subscription_id", subscriptionID)
	sub := s.activeSubscription(subscriptionID)
	sub.CancelAtPeriodEnd = true
	return sub, nil
}

func (s *StubProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	s.logger.InfoContext(ctx, "stub: GetSubscription called", "subscription_id", subscriptionID)
	return s.activeSubscription(subscriptionID), nil
}

func (s *StubProcessor) activeSubscription(id string) *Subscription {
	return &Subscription{
		ID:               id,
		Status:           "active",
		CurrentPeriodEnd: s.now().AddDate(0, 1, 0).Unix(),
	}
}

var (
	_ PaymentProcessor = (*StripeClient)(nil)
	_ PaymentProcessor = (*StubProcessor)(nil)
	_ WebhookVerifier  = (*StripeVerifier)(nil)
)
