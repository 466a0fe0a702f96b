package external

import (
	"context"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
)

// PaymentProcessor is the subset of the Stripe API the billing flows use.
type PaymentProcessor interface {
	// CreateCheckoutSession mints exactly one hosted session. It is never
	// retried by the client.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)

	// GetCheckoutSession re-fetches a session by id.
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// CancelAtPeriodEnd schedules the subscription to end with its current
	// billing period and returns the updated subscription.
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error)

	// GetSubscription fetches the current processor-side state.
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
}

// WebhookVerifier authenticates a raw webhook body before any field is read.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (stripe.Event, error)
}

// Checkout session modes.
const (
	CheckoutModeSubscription = "subscription"
	CheckoutModePayment      = "payment"
)

// Stripe event types the reconciler acts on.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Subscription statuses after which access must not continue.
const (
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusUnpaid            = "unpaid"
)

// CheckoutParams describes one hosted checkout session.
type CheckoutParams struct {
	// ClientReferenceID carries the verified user id into every event
	// derived from the session.
	ClientReferenceID string
	CustomerID        string
	CustomerEmail     string
	PriceID           string
	Mode              string
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
}

// CheckoutSession is the processor's view of a checkout session.
type CheckoutSession struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	Mode              string            `json:"mode"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	ClientReferenceID string            `json:"client_reference_id"`
	CustomerID        string            `json:"customer"`
	CustomerEmail     string            `json:"customer_email"`
	SubscriptionID    string            `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
	CustomerDetails   *CustomerDetails  `json:"customer_details"`
}

// CustomerDetails is the customer data collected on the hosted page.
type CustomerDetails struct {
	Email string `json:"email"`
}

// Email returns the best known email for the session.
func (s *CheckoutSession) Email() string {
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		return s.CustomerDetails.Email
	}
	return s.CustomerEmail
}

// Subscription is the processor's view of a subscription.
type Subscription struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	CustomerID        string            `json:"customer"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CancelAt          int64             `json:"cancel_at"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	CanceledAt        int64             `json:"canceled_at"`
	EndedAt           int64             `json:"ended_at"`
	Metadata          map[string]string `json:"metadata"`
	Items             subscriptionItems `json:"items"`
}

type subscriptionItems struct {
	Data []subscriptionItem `json:"data"`
}

type subscriptionItem struct {
	CurrentPeriodEnd int64 `json:"current_period_end"`
}

// PeriodEnd returns the end of the current billing period. Newer API
// versions report it per item; the latest item end wins.
func (s *Subscription) PeriodEnd() time.Time {
	end := s.CurrentPeriodEnd
	for _, item := range s.Items.Data {
		if item.CurrentPeriodEnd > end {
			end = item.CurrentPeriodEnd
		}
	}
	if end == 0 {
		return time.Time{}
	}
	return time.Unix(end, 0).UTC()
}

// EffectiveCancelAt is the moment access ends for a subscription scheduled
// to cancel: cancel_at when the processor set one, the period end otherwise.
func (s *Subscription) EffectiveCancelAt() time.Time {
	if s.CancelAt > 0 {
		return time.Unix(s.CancelAt, 0).UTC()
	}
	return s.PeriodEnd()
}

// Terminated reports whether the processor no longer considers the
// subscription billable.
func (s *Subscription) Terminated() bool {
	switch s.Status {
	case SubscriptionStatusCanceled, SubscriptionStatusIncompleteExpired, SubscriptionStatusUnpaid:
		return true
	}
	return false
}

// TerminatedAt is when the subscription stopped: ended_at, then canceled_at,
// then fallback.
func (s *Subscription) TerminatedAt(fallback time.Time) time.Time {
	switch {
	case s.EndedAt > 0:
		return time.Unix(s.EndedAt, 0).UTC()
	case s.CanceledAt > 0:
		return time.Unix(s.CanceledAt, 0).UTC()
	}
	return fallback
}
