package billing

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"edgealtar/internal/external"
	"edgealtar/internal/types"
)

// Metadata keys written on every checkout session.
const (
	MetadataPlan   = "plan"
	MetadataUserID = "user_id"
)

// CheckoutRequest is a verified caller asking to buy a plan.
type CheckoutRequest struct {
	UserID string
	Email  string
	Plan   string
}

// CheckoutResult carries the hosted page to redirect to.
type CheckoutResult struct {
	URL       string
	SessionID string
}

// CheckoutIssuer creates hosted checkout sessions.
type CheckoutIssuer struct {
	processor  external.PaymentProcessor
	catalog    PlanCatalog
	profiles   ProfileStore
	appBaseURL string
	logger     *slog.Logger
}

// NewCheckoutIssuer wires the issuer. profiles may be nil, in which case no
// existing customer is reused.
func NewCheckoutIssuer(
	processor external.PaymentProcessor,
	catalog PlanCatalog,
	profiles ProfileStore,
	appBaseURL string,
	logger *slog.Logger,
) *CheckoutIssuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutIssuer{
		processor:  processor,
		catalog:    catalog,
		profiles:   profiles,
		appBaseURL: strings.TrimSuffix(appBaseURL, "/"),
		logger:     logger,
	}
}

// Issue creates exactly one checkout session. It must not be retried on
// failure: every successful call mints a new session.
func (c *CheckoutIssuer) Issue(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if req.UserID == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "checkout requires a verified user", nil)
	}

	plan, err := c.catalog.Resolve(req.Plan)
	if err != nil {
		return nil, err
	}

	successURL, cancelURL, err := c.returnURLs()
	if err != nil {
		return nil, err
	}

	params := external.CheckoutParams{
		ClientReferenceID: req.UserID,
		CustomerEmail:     req.Email,
		PriceID:           plan.PriceID,
		Mode:              plan.Mode,
		SuccessURL:        successURL,
		CancelURL:         cancelURL,
		Metadata: map[string]string{
			MetadataPlan:   string(plan.Kind),
			MetadataUserID: req.UserID,
		},
	}
	if customerID := c.existingCustomer(ctx, req.UserID); customerID != "" {
		params.CustomerID = customerID
		params.CustomerEmail = ""
	}

	session, err := c.processor.CreateCheckoutSession(ctx, params)
	if err != nil {
		c.logger.ErrorContext(ctx, "checkout session creation failed",
			"user_id", req.UserID,
			"plan", string(plan.Kind),
			"error", err,
		)
		return nil, err
	}

	c.logger.InfoContext(ctx, "checkout session created",
		"user_id", req.UserID,
		"plan", string(plan.Kind),
		"session_id", session.ID,
		"reused_customer", params.CustomerID != "",
	)
	return &CheckoutResult{URL: session.URL, SessionID: session.ID}, nil
}

// returnURLs builds the success and cancel redirects from the public app URL.
// {CHECKOUT_SESSION_ID} is substituted by the processor.
func (c *CheckoutIssuer) returnURLs() (string, string, error) {
	if c.appBaseURL == "" {
		return "", "", types.NewAppError(types.ErrCodePreconditionConfigMissing,
			"APP_BASE_URL is not configured; cannot build checkout return URLs", nil)
	}
	base, err := url.Parse(c.appBaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", "", types.NewAppError(types.ErrCodePreconditionConfigMissing,
			"APP_BASE_URL is not an absolute URL", err)
	}
	success := c.appBaseURL + "/premium?checkout=success&session_id={CHECKOUT_SESSION_ID}"
	cancel := c.appBaseURL + "/premium?checkout=cancelled"
	return success, cancel, nil
}

// existingCustomer returns the stored processor customer id, if any. Lookup
// failures only cost the reuse, so they are logged and ignored.
func (c *CheckoutIssuer) existingCustomer(ctx context.Context, userID string) string {
	if c.profiles == nil {
		return ""
	}
	profile, err := c.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if !types.HasCode(err, types.ErrCodeNotFoundProfile) {
			c.logger.WarnContext(ctx, "profile lookup failed during checkout; continuing without customer id",
				"user_id", userID,
				"error", err,
			)
		}
		return ""
	}
	return profile.StripeCustomerID
}
