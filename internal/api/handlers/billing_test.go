package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"edgealtar/internal/billing"
	"edgealtar/internal/core"
	"edgealtar/internal/types"
)

type mockIssuer struct {
	issueFn func(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutResult, error)
	calls   []billing.CheckoutRequest
}

func (m *mockIssuer) Issue(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutResult, error) {
	m.calls = append(m.calls, req)
	if m.issueFn != nil {
		return m.issueFn(ctx, req)
	}
	return &billing.CheckoutResult{URL: "https://checkout.stripe.com/c/pay/cs_test", SessionID: "cs_test"}, nil
}

type mockCanceler struct {
	cancelFn func(ctx context.Context, userID string) (time.Time, error)
	calls    []string
}

func (m *mockCanceler) Cancel(ctx context.Context, userID string) (time.Time, error) {
	m.calls = append(m.calls, userID)
	if m.cancelFn != nil {
		return m.cancelFn(ctx, userID)
	}
	return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), nil
}

func newBillingRouter(identity types.Identity, issuer *mockIssuer, canceler *mockCanceler) http.Handler {
	h := NewBillingHandler(issuer, canceler, core.NewValidator(discardLogger()), discardLogger())
	return newRouter(identity, h.RegisterRoutes)
}

func TestCreateCheckout_Success(t *testing.T) {
	issuer := &mockIssuer{}
	rec := do(t, newBillingRouter(testIdentity, issuer, &mockCanceler{}), http.MethodPost, "/billing/checkout", `{"plan":"annual"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp CheckoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.URL != "https://checkout.stripe.com/c/pay/cs_test" {
		t.Errorf("url = %q", resp.URL)
	}
	if len(issuer.calls) != 1 {
		t.Fatalf("expected one issue call, got %d", len(issuer.calls))
	}
	got := issuer.calls[0]
	if got.UserID != "user-1" || got.Email != "witch@example.com" || got.Plan != "annual" {
		t.Errorf("issuer got %+v", got)
	}
}

func TestCreateCheckout_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		identity   types.Identity
		body       string
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{"anonymous", types.Identity{}, `{"plan":"monthly"}`, http.StatusUnauthorized, types.ErrCodeAuthTokenMissing},
		{"unknown plan", testIdentity, `{"plan":"weekly"}`, http.StatusBadRequest, types.ErrCodeValidationInvalidPlan},
		{"missing plan", testIdentity, `{}`, http.StatusBadRequest, types.ErrCodeValidationMissingField},
		{"client supplied user id", testIdentity, `{"plan":"monthly","user_id":"someone-else"}`, http.StatusBadRequest, types.ErrCodeValidationInvalidBody},
		{"malformed", testIdentity, `{"plan":`, http.StatusBadRequest, types.ErrCodeValidationInvalidBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := &mockIssuer{}
			rec := do(t, newBillingRouter(tt.identity, issuer, &mockCanceler{}), http.MethodPost, "/billing/checkout", tt.body)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if code := errorCode(t, rec); code != string(tt.wantCode) {
				t.Errorf("code = %s, want %s", code, tt.wantCode)
			}
			if len(issuer.calls) != 0 {
				t.Error("issuer must not be called")
			}
		})
	}
}

func TestCreateCheckout_ServiceErrors(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrCodePreconditionConfigMissing, http.StatusInternalServerError},
		{types.ErrCodeUpstreamStripe, http.StatusInternalServerError},
		{types.ErrCodeUpstreamRateLimited, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			issuer := &mockIssuer{issueFn: func(context.Context, billing.CheckoutRequest) (*billing.CheckoutResult, error) {
				return nil, types.NewAppError(tt.code, "failed", nil)
			}}
			rec := do(t, newBillingRouter(testIdentity, issuer, &mockCanceler{}), http.MethodPost, "/billing/checkout", `{"plan":"monthly"}`)
			if rec.Code != tt.wantStatus || errorCode(t, rec) != string(tt.code) {
				t.Errorf("got %d %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCancelSubscription(t *testing.T) {
	canceler := &mockCanceler{}
	rec := do(t, newBillingRouter(testIdentity, &mockIssuer{}, canceler), http.MethodPost, "/billing/cancel", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp CancelResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || !resp.CancelAt.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(canceler.calls) != 1 || canceler.calls[0] != "user-1" {
		t.Errorf("canceler calls = %v", canceler.calls)
	}
}

func TestCancelSubscription_Errors(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrCodeOperationLifetimeCancel, http.StatusUnprocessableEntity},
		{types.ErrCodePreconditionNoSubscription, http.StatusConflict},
		{types.ErrCodeNotFoundProfile, http.StatusNotFound},
		{types.ErrCodeUpstreamStripe, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			canceler := &mockCanceler{cancelFn: func(context.Context, string) (time.Time, error) {
				return time.Time{}, types.NewAppError(tt.code, "failed", nil)
			}}
			rec := do(t, newBillingRouter(testIdentity, &mockIssuer{}, canceler), http.MethodPost, "/billing/cancel", "")
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestCancelSubscription_Anonymous(t *testing.T) {
	canceler := &mockCanceler{}
	rec := do(t, newBillingRouter(types.Identity{}, &mockIssuer{}, canceler), http.MethodPost, "/billing/cancel", "")
	if rec.Code != http.StatusUnauthorized || len(canceler.calls) != 0 {
		t.Errorf("got %d with %d calls", rec.Code, len(canceler.calls))
	}
}
