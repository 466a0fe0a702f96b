package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"edgealtar/internal/types"
)

// stripeAPIBase is the default Stripe API base URL.
const stripeAPIBase = "https://api.stripe.com"

const stripeUserAgent = "EdgeAltar-Billing/1.0"

// StripeClientConfig holds the configuration for a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string
	Logger    *slog.Logger
}

// StripeClient implements PaymentProcessor with direct form-encoded calls to
// the Stripe REST API. Every call is a single attempt behind one circuit
// breaker; redelivery and client polling cover transient failures.
type StripeClient struct {
	client    *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient builds a StripeClient over httpClient.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	return NewStripeClientWithBase(
		NewBaseClient(httpClient, "stripe", NoRetryPolicy(), stripeUserAgent),
		cfg,
	)
}

// NewStripeClientWithBase builds a StripeClient over a preconfigured client.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		client:    base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// CreateCheckoutSession creates a hosted Checkout Session. The user id is
// sent as client_reference_id and copied into the session metadata, and into
// subscription metadata for recurring plans so deletion events carry it too.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := url.Values{}
	params.Set("mode", p.Mode)
	params.Set("client_reference_id", p.ClientReferenceID)
	params.Set("success_url", p.SuccessURL)
	params.Set("cancel_url", p.CancelURL)
	params.Set("line_items[0][price]", p.PriceID)
	params.Set("line_items[0][quantity]", "1")

	switch {
	case p.CustomerID != "":
		params.Set("customer", p.CustomerID)
	case p.CustomerEmail != "":
		params.Set("customer_email", p.CustomerEmail)
	}

	for _, k := range sortedKeys(p.Metadata) {
		params.Set("metadata["+k+"]", p.Metadata[k])
		if p.Mode == CheckoutModeSubscription {
			params.Set("subscription_data[metadata]["+k+"]", p.Metadata[k])
		}
	}
	if p.Mode == CheckoutModePayment && p.CustomerID == "" {
		// Lifetime purchases still need a customer record for later support.
		params.Set("customer_creation", "always")
	}

	var session CheckoutSession
	if err := s.call(ctx, s.client, http.MethodPost, "/v1/checkout/sessions", params, "CreateCheckoutSession", &session); err != nil {
		return nil, err
	}
	if session.URL == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamStripe, "CreateCheckoutSession: Stripe returned a session without a URL", nil)
	}
	return &session, nil
}

// GetCheckoutSession retrieves a session by id.
func (s *StripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if sessionID == "" {
		return nil, types.NewAppError(types.ErrCodeNotFoundSession, "checkout session id is empty", nil)
	}
	var session CheckoutSession
	path := "/v1/checkout/sessions/" + url.PathEscape(sessionID)
	if err := s.call(ctx, s.client, http.MethodGet, path, nil, "GetCheckoutSession", &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CancelAtPeriodEnd sets cancel_at_period_end=true on the subscription.
func (s *StripeClient) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := url.Values{}
	params.Set("cancel_at_period_end", "true")

	var sub Subscription
	path := "/v1/subscriptions/" + url.PathEscape(subscriptionID)
	if err := s.call(ctx, s.client, http.MethodPost, path, params, "CancelAtPeriodEnd", &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubscription retrieves a subscription by id.
func (s *StripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var sub Subscription
	path := "/v1/subscriptions/" + url.PathEscape(subscriptionID)
	if err := s.call(ctx, s.client, http.MethodGet, path, nil, "GetSubscription", &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// call performs one authenticated request and decodes a 200 body into out.
func (s *StripeClient) call(
	ctx context.Context,
	client *BaseClient,
	method, path string,
	params url.Values,
	operation string,
	out any,
) error {
	reqURL := s.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, operation+": building request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		s.logger.WarnContext(ctx, "stripe request failed",
			"operation", operation,
			"duration", time.Since(start),
			"error", err,
		)
		return wrapStripeError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return handleErrorResponse(resp, operation)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: failed to decode Stripe response", operation), err)
	}
	return nil
}

type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
}

func handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if readErr != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned %d with unreadable body", operation, resp.StatusCode), readErr)
	}

	var stripeErr stripeErrorResponse
	if err := json.Unmarshal(body, &stripeErr); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned %d with non-JSON body", operation, resp.StatusCode), err)
	}
	return mapStripeError(operation, resp.StatusCode, &stripeErr.Error)
}

// mapStripeError translates a Stripe error body into an AppError.
func mapStripeError(operation string, statusCode int, e *stripeErrorBody) error {
	details := map[string]any{"stripe_type": e.Type}
	if e.Code != "" {
		details["stripe_code"] = e.Code
	}
	if e.Param != "" {
		details["stripe_param"] = e.Param
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation), nil)
	case statusCode >= 500:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Stripe server error: %s", operation, e.Message), nil)
	case statusCode == http.StatusNotFound || e.Code == "resource_missing":
		details["not_found"] = true
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe resource not found: %s", operation, e.Message), nil, details)
	default:
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, statusCode, e.Message), nil, details)
	}
}

// IsStripeNotFound reports whether err came from a Stripe 404.
func IsStripeNotFound(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Details == nil {
		return false
	}
	nf, _ := appErr.Details["not_found"].(bool)
	return nf
}

func wrapStripeError(operation string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed", operation), err)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
