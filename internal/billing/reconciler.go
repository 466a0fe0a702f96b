package billing

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"edgealtar/internal/external"
	"edgealtar/internal/types"
)

// Outcome describes what reconciling one event did.
type Outcome string

const (
	OutcomeGranted   Outcome = "granted"
	OutcomeRevoked   Outcome = "revoked"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeStale     Outcome = "stale"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
)

// Checkout payment statuses.
const paymentStatusUnpaid = "unpaid"

// ReconcilerDeps bundles the reconciler's collaborators. Ledger, Publisher
// and Observer are optional.
type ReconcilerDeps struct {
	Processor external.PaymentProcessor
	Profiles  ProfileStore
	Ledger    EventLedger
	Publisher AccessPublisher
	Observer  EventObserver
	Logger    *slog.Logger
}

// Reconciler maps verified billing events onto the profile access level.
// Every mutation is an upsert guarded by the event timestamp and id, so
// concurrent and repeated deliveries of the same event apply at most once.
type Reconciler struct {
	processor external.PaymentProcessor
	profiles  ProfileStore
	ledger    EventLedger
	publisher AccessPublisher
	observer  EventObserver
	logger    *slog.Logger
}

func NewReconciler(deps ReconcilerDeps) *Reconciler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		processor: deps.Processor,
		profiles:  deps.Profiles,
		ledger:    deps.Ledger,
		publisher: deps.Publisher,
		observer:  deps.Observer,
		logger:    logger,
	}
}

// Handle reconciles one event whose signature was already verified. A
// non-nil error means the datastore could not be reached and the processor
// should redeliver; lookup misses and unknown event types return nil.
func (r *Reconciler) Handle(ctx context.Context, evt stripe.Event) (Outcome, error) {
	start := time.Now()
	eventType := string(evt.Type)
	logger := r.logger.With("event_id", evt.ID, "event_type", eventType)

	outcome, err := r.dispatch(ctx, logger, evt)
	if err != nil {
		outcome = OutcomeFailed
		logger.ErrorContext(ctx, "billing event reconciliation failed", "error", err)
	} else if r.ledger != nil && outcome != OutcomeDuplicate && outcome != OutcomeIgnored {
		if markErr := r.ledger.MarkProcessed(ctx, evt.ID); markErr != nil {
			logger.WarnContext(ctx, "failed to record processed event", "error", markErr)
		}
	}

	if r.observer != nil {
		r.observer.ObserveEvent(eventType, string(outcome), time.Since(start))
	}
	return outcome, err
}

func (r *Reconciler) dispatch(ctx context.Context, logger *slog.Logger, evt stripe.Event) (Outcome, error) {
	switch string(evt.Type) {
	case external.EventCheckoutCompleted, external.EventSubscriptionDeleted:
	default:
		logger.DebugContext(ctx, "billing event acknowledged without action")
		return OutcomeIgnored, nil
	}

	if r.ledger != nil {
		seen, err := r.ledger.Seen(ctx, evt.ID)
		if err != nil {
			logger.WarnContext(ctx, "event ledger unavailable; processing anyway", "error", err)
		} else if seen {
			logger.InfoContext(ctx, "duplicate billing event skipped")
			return OutcomeDuplicate, nil
		}
	}

	eventAt := time.Unix(evt.Created, 0).UTC()
	if evt.Data == nil {
		logger.WarnContext(ctx, "billing event has no data object")
		return OutcomeIgnored, nil
	}

	if string(evt.Type) == external.EventCheckoutCompleted {
		var session external.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			logger.WarnContext(ctx, "checkout session payload unreadable", "error", err)
			return OutcomeIgnored, nil
		}
		return r.checkoutCompleted(ctx, logger, evt.ID, &session, eventAt)
	}

	var sub external.Subscription
	if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
		logger.WarnContext(ctx, "subscription payload unreadable", "error", err)
		return OutcomeIgnored, nil
	}
	return r.subscriptionDeleted(ctx, logger, evt.ID, &sub, eventAt)
}

func (r *Reconciler) checkoutCompleted(
	ctx context.Context,
	logger *slog.Logger,
	eventID string,
	session *external.CheckoutSession,
	eventAt time.Time,
) (Outcome, error) {
	logger = logger.With("session_id", session.ID)

	if session.ClientReferenceID == "" && session.ID != "" {
		// Truncated payloads can omit the reference; the stored session has it.
		full, err := r.processor.GetCheckoutSession(ctx, session.ID)
		if err != nil {
			logger.WarnContext(ctx, "checkout session re-fetch failed", "error", err)
		} else {
			session = full
		}
	}

	userID := session.ClientReferenceID
	if userID == "" {
		logger.WarnContext(ctx, "checkout completed without a client reference; no profile to update")
		return OutcomeUnmatched, nil
	}
	logger = logger.With("user_id", userID)

	if session.PaymentStatus == paymentStatusUnpaid {
		logger.InfoContext(ctx, "checkout completed with payment pending; waiting for settlement")
		return OutcomeIgnored, nil
	}

	kind := grantKind(session)
	grant := types.PremiumGrant{
		UserID:           userID,
		Email:            session.Email(),
		StripeCustomerID: session.CustomerID,
		Kind:             kind,
		EventID:          eventID,
		EventAt:          eventAt,
	}
	if kind.IsRecurring() {
		grant.StripeSubscriptionID = session.SubscriptionID
	}

	applied, err := r.profiles.GrantPremium(ctx, grant)
	if err != nil {
		return OutcomeFailed, err
	}
	if !applied {
		logger.InfoContext(ctx, "premium grant already applied or superseded by a newer event")
		return OutcomeStale, nil
	}

	logger.InfoContext(ctx, "premium access granted",
		"subscription_type", string(kind),
		"subscription_id", grant.StripeSubscriptionID,
	)
	r.publish(ctx, logger, types.AccessChanged{
		UserID:           userID,
		AccessLevel:      types.AccessPremium,
		SubscriptionType: kind,
		Source:           types.AccessSourceCheckout,
		EventID:          eventID,
		OccurredAt:       eventAt,
	})
	return OutcomeGranted, nil
}

func (r *Reconciler) subscriptionDeleted(
	ctx context.Context,
	logger *slog.Logger,
	eventID string,
	sub *external.Subscription,
	eventAt time.Time,
) (Outcome, error) {
	if sub.ID == "" {
		logger.WarnContext(ctx, "subscription deleted event without subscription id")
		return OutcomeIgnored, nil
	}
	logger = logger.With("subscription_id", sub.ID)

	userID, err := r.profiles.RevokeBySubscription(ctx, sub.ID, eventAt)
	if err != nil {
		return OutcomeFailed, err
	}
	if userID == "" {
		logger.WarnContext(ctx, "no profile holds this subscription; nothing to revoke")
		return OutcomeUnmatched, nil
	}

	logger.InfoContext(ctx, "premium access revoked", "user_id", userID)
	r.publish(ctx, logger, types.AccessChanged{
		UserID:      userID,
		AccessLevel: types.AccessFree,
		Source:      types.AccessSourceSubDeleted,
		EventID:     eventID,
		OccurredAt:  eventAt,
	})
	return OutcomeRevoked, nil
}

func (r *Reconciler) publish(ctx context.Context, logger *slog.Logger, evt types.AccessChanged) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, evt); err != nil {
		logger.WarnContext(ctx, "access change publish failed", "error", err)
	}
}

// grantKind reads the plan from session metadata, falling back to the
// checkout mode when metadata is missing or unrecognised.
func grantKind(session *external.CheckoutSession) types.SubscriptionKind {
	if kind := types.SubscriptionKind(session.Metadata[MetadataPlan]); kind.IsValid() {
		return kind
	}
	if session.Mode == external.CheckoutModePayment {
		return types.SubscriptionLifetime
	}
	return types.SubscriptionMonthly
}
