package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	stripe "github.com/stripe/stripe-go/v82"

	"edgealtar/internal/billing"
	"edgealtar/internal/core"
	"edgealtar/internal/external"
	"edgealtar/internal/types"
)

// maxWebhookBodySize bounds the raw webhook body read before verification.
const maxWebhookBodySize = 64 * 1024

// EventReconciler applies a verified billing event.
// Implemented by billing.Reconciler.
type EventReconciler interface {
	Handle(ctx context.Context, evt stripe.Event) (billing.Outcome, error)
}

// WebhookResponse acknowledges a delivery.
type WebhookResponse struct {
	Received bool `json:"received"`
}

// StripeWebhookHandler receives processor events. It sits outside bearer
// auth; the signature over the raw body is the only credential.
type StripeWebhookHandler struct {
	verifier   external.WebhookVerifier
	reconciler EventReconciler
	logger     *slog.Logger
}

func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	reconciler EventReconciler,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		logger:     logger,
	}
}

// RegisterRoutes mounts the public webhook endpoint.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle verifies the signature before reading any field of the payload.
// Verification failures are 400 and change nothing. Once verified, the
// delivery is acknowledged with 200 unless the datastore could not be
// reached, in which case a 500 asks the processor to redeliver.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidBody, "failed to read request body", err))
		return
	}

	evt, err := h.verifier.Verify(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if types.HasCode(err, types.ErrCodeSignatureNoSecret) {
			h.logger.ErrorContext(r.Context(), "webhook rejected: signing secret not configured")
		} else {
			h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		}
		core.Error(w, r, err)
		return
	}

	outcome, err := h.reconciler.Handle(r.Context(), evt)
	if err != nil && types.IsInfrastructure(err) {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "stripe webhook processed",
		"event_id", evt.ID,
		"event_type", string(evt.Type),
		"outcome", string(outcome),
	)
	core.JSON(w, r, http.StatusOK, WebhookResponse{Received: true})
}
