package external

import (
	"errors"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"edgealtar/internal/types"
)

// StripeVerifier checks the Stripe-Signature header (HMAC-SHA256 over the raw
// body and timestamp) before the event is decoded.
type StripeVerifier struct {
	secret    types.SecretString
	tolerance time.Duration
}

// NewStripeVerifier returns a verifier for the endpoint signing secret.
// A zero tolerance uses the library default of five minutes.
func NewStripeVerifier(secret types.SecretString, tolerance time.Duration) *StripeVerifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeVerifier{secret: secret, tolerance: tolerance}
}

// Verify fails closed on a missing secret, a missing header, or any signature
// or timestamp mismatch. The API version of the event is not enforced so
// endpoint upgrades do not drop deliveries.
func (v *StripeVerifier) Verify(payload []byte, signatureHeader string) (stripe.Event, error) {
	if !v.secret.IsSet() {
		return stripe.Event{}, types.NewAppError(types.ErrCodeSignatureNoSecret, "webhook signing secret is not configured", nil)
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return stripe.Event{}, types.NewAppError(types.ErrCodeSignatureMissing, "missing Stripe-Signature header", nil)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret.Unmask(), webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		msg := "invalid Stripe signature"
		if errors.Is(err, webhook.ErrTooOld) {
			msg = "Stripe signature timestamp outside tolerance"
		}
		return stripe.Event{}, types.NewAppError(types.ErrCodeSignatureInvalid, msg, err)
	}
	return event, nil
}
