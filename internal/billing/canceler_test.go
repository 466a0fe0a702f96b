package billing

import (
	"context"
	"testing"
	"time"

	"edgealtar/internal/external"
	"edgealtar/internal/types"
)

func TestCanceler_Cancel(t *testing.T) {
	periodEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	proc := newFakeProcessor()
	proc.cancelSub = &external.Subscription{ID: "sub_1", CancelAtPeriodEnd: true, CurrentPeriodEnd: periodEnd.Unix()}
	profiles := newMemProfiles(types.Profile{
		UserID:               "user-1",
		AccessLevel:          types.AccessPremium,
		SubscriptionType:     types.SubscriptionMonthly,
		StripeSubscriptionID: "sub_1",
	})

	cancelAt, err := NewCanceler(proc, profiles, nil).Cancel(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !cancelAt.Equal(periodEnd) {
		t.Errorf("cancelAt = %v, want %v", cancelAt, periodEnd)
	}
	if len(proc.cancelCalls) != 1 || proc.cancelCalls[0] != "sub_1" {
		t.Errorf("cancel calls = %v", proc.cancelCalls)
	}

	p := profiles.get("user-1")
	if p.AccessLevel != types.AccessPremium {
		t.Error("access must stay premium until the deletion event")
	}
	if p.CancelAt == nil || !p.CancelAt.Equal(periodEnd) {
		t.Errorf("cancel_at not recorded: %v", p.CancelAt)
	}
}

func TestCanceler_PrefersExplicitCancelAt(t *testing.T) {
	explicit := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	proc := newFakeProcessor()
	proc.cancelSub = &external.Subscription{
		ID:               "sub_1",
		CancelAt:         explicit.Unix(),
		CurrentPeriodEnd: explicit.Add(24 * time.Hour).Unix(),
	}
	profiles := newMemProfiles(types.Profile{UserID: "u", SubscriptionType: types.SubscriptionAnnual, StripeSubscriptionID: "sub_1"})

	got, err := NewCanceler(proc, profiles, nil).Cancel(context.Background(), "u")
	if err != nil || !got.Equal(explicit) {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestCanceler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		profile  *types.Profile
		sub      *external.Subscription
		procErr  error
		wantCode types.ErrorCode
		wantCall bool
	}{
		{
			name:     "no profile",
			wantCode: types.ErrCodeNotFoundProfile,
		},
		{
			name:     "lifetime",
			profile:  &types.Profile{UserID: "u", AccessLevel: types.AccessPremium, SubscriptionType: types.SubscriptionLifetime},
			wantCode: types.ErrCodeOperationLifetimeCancel,
		},
		{
			name:     "free user",
			profile:  &types.Profile{UserID: "u", AccessLevel: types.AccessFree},
			wantCode: types.ErrCodePreconditionNoSubscription,
		},
		{
			name:     "processor failure",
			profile:  &types.Profile{UserID: "u", SubscriptionType: types.SubscriptionMonthly, StripeSubscriptionID: "sub_1"},
			procErr:  types.NewAppError(types.ErrCodeUpstreamStripe, "boom", nil),
			wantCode: types.ErrCodeUpstreamStripe,
			wantCall: true,
		},
		{
			name:     "no period end",
			profile:  &types.Profile{UserID: "u", SubscriptionType: types.SubscriptionMonthly, StripeSubscriptionID: "sub_1"},
			sub:      &external.Subscription{ID: "sub_1"},
			wantCode: types.ErrCodeUpstreamStripe,
			wantCall: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := newMemProfiles()
			if tt.profile != nil {
				profiles = newMemProfiles(*tt.profile)
			}
			proc := newFakeProcessor()
			proc.cancelErr = tt.procErr
			proc.cancelSub = tt.sub

			_, err := NewCanceler(proc, profiles, nil).Cancel(context.Background(), "u")
			if !types.HasCode(err, tt.wantCode) {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
			if got := len(proc.cancelCalls) == 1; got != tt.wantCall {
				t.Errorf("processor called = %v, want %v", got, tt.wantCall)
			}
		})
	}
}

func TestCanceler_LocalRecordFailureStillSucceeds(t *testing.T) {
	proc := newFakeProcessor()
	proc.cancelSub = &external.Subscription{ID: "sub_1", CurrentPeriodEnd: time.Now().Add(time.Hour).Unix()}
	profiles := newMemProfiles(types.Profile{UserID: "u", SubscriptionType: types.SubscriptionMonthly, StripeSubscriptionID: "sub_1"})
	profiles.markErr = types.NewAppError(types.ErrCodeInternalDB, "down", nil)

	if _, err := NewCanceler(proc, profiles, nil).Cancel(context.Background(), "u"); err != nil {
		t.Errorf("expected success, got %v", err)
	}
}
