// Package handlers contains the HTTP handlers for the Edge & Altar API.
//
// Handlers define the narrow service contracts they depend on and receive
// implementations through their constructors. Caller identity always comes
// from the verified request context, never from request bodies.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"edgealtar/internal/billing"
	"edgealtar/internal/core"
)

// CheckoutIssuer creates hosted checkout sessions.
// Implemented by billing.CheckoutIssuer.
type CheckoutIssuer interface {
	Issue(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutResult, error)
}

// SubscriptionCanceler schedules end-of-period cancellation.
// Implemented by billing.Canceler.
type SubscriptionCanceler interface {
	Cancel(ctx context.Context, userID string) (time.Time, error)
}

// CheckoutRequest is the body of POST /v1/billing/checkout. Return URLs are
// built server-side from APP_BASE_URL and never accepted from the client.
type CheckoutRequest struct {
	Plan string `json:"plan" validate:"required,plan"`
}

// CheckoutResponse carries the hosted checkout page.
type CheckoutResponse struct {
	URL string `json:"url"`
}

// CancelResponse reports when premium access ends.
type CancelResponse struct {
	Success  bool      `json:"success"`
	CancelAt time.Time `json:"cancel_at"`
}

// BillingHandler serves the user-initiated billing actions.
type BillingHandler struct {
	issuer    CheckoutIssuer
	canceler  SubscriptionCanceler
	validator *core.Validator
	logger    *slog.Logger
}

func NewBillingHandler(
	issuer CheckoutIssuer,
	canceler SubscriptionCanceler,
	v *core.Validator,
	l *slog.Logger,
) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BillingHandler{
		issuer:    issuer,
		canceler:  canceler,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the billing endpoints on the authenticated /v1 router.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/checkout", h.CreateCheckout)
	r.Post("/billing/cancel", h.CancelSubscription)
}

// CreateCheckout handles POST /v1/billing/checkout.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	id, ok := core.RequireIdentity(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	res, err := h.issuer.Issue(r.Context(), billing.CheckoutRequest{
		UserID: id.UserID,
		Email:  id.Email,
		Plan:   req.Plan,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, CheckoutResponse{URL: res.URL})
}

// CancelSubscription handles POST /v1/billing/cancel. The request body, if
// any, is ignored.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := core.RequireIdentity(w, r)
	if !ok {
		return
	}

	cancelAt, err := h.canceler.Cancel(r.Context(), id.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, CancelResponse{Success: true, CancelAt: cancelAt})
}
