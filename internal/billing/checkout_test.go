package billing

import (
	"context"
	"strings"
	"testing"

	"edgealtar/internal/external"
	"edgealtar/internal/types"
)

func newTestIssuer(proc *fakeProcessor, profiles ProfileStore, base string) *CheckoutIssuer {
	return NewCheckoutIssuer(proc, NewPlanCatalog(testBillingConfig()), profiles, base, nil)
}

func TestCheckoutIssuer_Issue(t *testing.T) {
	proc := newFakeProcessor()
	issuer := newTestIssuer(proc, newMemProfiles(), "https://edgeandaltar.com/")

	res, err := issuer.Issue(context.Background(), CheckoutRequest{UserID: "user-1", Email: "w@example.com", Plan: "annual"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if res.URL == "" || res.SessionID != "cs_test_1" {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(proc.checkoutCalls) != 1 {
		t.Fatalf("expected exactly one session, got %d", len(proc.checkoutCalls))
	}

	p := proc.checkoutCalls[0]
	if p.ClientReferenceID != "user-1" {
		t.Errorf("client reference = %q", p.ClientReferenceID)
	}
	if p.PriceID != "price_annual" || p.Mode != external.CheckoutModeSubscription {
		t.Errorf("price/mode = %s/%s", p.PriceID, p.Mode)
	}
	if p.CustomerEmail != "w@example.com" || p.CustomerID != "" {
		t.Errorf("customer = %q/%q", p.CustomerID, p.CustomerEmail)
	}
	if p.Metadata[MetadataPlan] != "annual" || p.Metadata[MetadataUserID] != "user-1" {
		t.Errorf("metadata = %v", p.Metadata)
	}
	if p.SuccessURL != "https://edgeandaltar.com/premium?checkout=success&session_id={CHECKOUT_SESSION_ID}" {
		t.Errorf("success url = %q", p.SuccessURL)
	}
	if p.CancelURL != "https://edgeandaltar.com/premium?checkout=cancelled" {
		t.Errorf("cancel url = %q", p.CancelURL)
	}
}

func TestCheckoutIssuer_LifetimeUsesPaymentMode(t *testing.T) {
	proc := newFakeProcessor()
	issuer := newTestIssuer(proc, nil, "https://edgeandaltar.com")

	if _, err := issuer.Issue(context.Background(), CheckoutRequest{UserID: "user-1", Plan: "lifetime"}); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if proc.checkoutCalls[0].Mode != external.CheckoutModePayment {
		t.Errorf("mode = %q", proc.checkoutCalls[0].Mode)
	}
}

func TestCheckoutIssuer_ReusesCustomer(t *testing.T) {
	proc := newFakeProcessor()
	profiles := newMemProfiles(types.Profile{UserID: "user-1", StripeCustomerID: "cus_123"})
	issuer := newTestIssuer(proc, profiles, "https://edgeandaltar.com")

	if _, err := issuer.Issue(context.Background(), CheckoutRequest{UserID: "user-1", Email: "w@example.com", Plan: "monthly"}); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	p := proc.checkoutCalls[0]
	if p.CustomerID != "cus_123" || p.CustomerEmail != "" {
		t.Errorf("customer = %q/%q", p.CustomerID, p.CustomerEmail)
	}
}

func TestCheckoutIssuer_ProfileLookupFailureIsNotFatal(t *testing.T) {
	proc := newFakeProcessor()
	profiles := newMemProfiles()
	profiles.getErr = types.NewAppError(types.ErrCodeInternalDB, "down", nil)
	issuer := newTestIssuer(proc, profiles, "https://edgeandaltar.com")

	if _, err := issuer.Issue(context.Background(), CheckoutRequest{UserID: "user-1", Plan: "monthly"}); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(proc.checkoutCalls) != 1 {
		t.Errorf("expected checkout to proceed")
	}
}

func TestCheckoutIssuer_Errors(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		req      CheckoutRequest
		procErr  error
		wantCode types.ErrorCode
		wantCall bool
	}{
		{
			name:     "missing user",
			base:     "https://edgeandaltar.com",
			req:      CheckoutRequest{Plan: "monthly"},
			wantCode: types.ErrCodeAuthTokenInvalid,
		},
		{
			name:     "invalid plan",
			base:     "https://edgeandaltar.com",
			req:      CheckoutRequest{UserID: "u", Plan: "forever"},
			wantCode: types.ErrCodeValidationInvalidPlan,
		},
		{
			name:     "missing base url",
			req:      CheckoutRequest{UserID: "u", Plan: "monthly"},
			wantCode: types.ErrCodePreconditionConfigMissing,
		},
		{
			name:     "relative base url",
			base:     "edgeandaltar.com",
			req:      CheckoutRequest{UserID: "u", Plan: "monthly"},
			wantCode: types.ErrCodePreconditionConfigMissing,
		},
		{
			name:     "processor failure is not retried",
			base:     "https://edgeandaltar.com",
			req:      CheckoutRequest{UserID: "u", Plan: "monthly"},
			procErr:  types.NewAppError(types.ErrCodeUpstreamUnavailable, "503", nil),
			wantCode: types.ErrCodeUpstreamUnavailable,
			wantCall: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := newFakeProcessor()
			proc.checkoutErr = tt.procErr
			_, err := newTestIssuer(proc, nil, tt.base).Issue(context.Background(), tt.req)
			if !types.HasCode(err, tt.wantCode) {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
			calls := len(proc.checkoutCalls)
			if tt.wantCall && calls != 1 {
				t.Errorf("expected one processor call, got %d", calls)
			}
			if !tt.wantCall && calls != 0 {
				t.Errorf("processor must not be called, got %d", calls)
			}
		})
	}
}

func TestCheckoutIssuer_ReturnURLsHaveNoDoubleSlash(t *testing.T) {
	proc := newFakeProcessor()
	_, _ = newTestIssuer(proc, nil, "https://edgeandaltar.com/").Issue(context.Background(),
		CheckoutRequest{UserID: "u", Plan: "monthly"})
	if strings.Contains(strings.TrimPrefix(proc.checkoutCalls[0].SuccessURL, "https://"), "//") {
		t.Errorf("double slash in %q", proc.checkoutCalls[0].SuccessURL)
	}
}
