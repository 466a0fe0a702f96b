package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"edgealtar/internal/external"
	"edgealtar/internal/types"
)

// fakeProcessor records calls and returns canned processor objects.
type fakeProcessor struct {
	mu sync.Mutex

	checkoutCalls []external.CheckoutParams
	checkoutErr   error

	sessions   map[string]*external.CheckoutSession
	sessionErr error

	cancelCalls []string
	cancelSub   *external.Subscription
	cancelErr   error

	subs    map[string]*external.Subscription
	subErrs map[string]error
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		sessions: map[string]*external.CheckoutSession{},
		subs:     map[string]*external.Subscription{},
		subErrs:  map[string]error{},
	}
}

func (f *fakeProcessor) CreateCheckoutSession(_ context.Context, p external.CheckoutParams) (*external.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkoutCalls = append(f.checkoutCalls, p)
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return &external.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1", Mode: p.Mode}, nil
}

func (f *fakeProcessor) GetCheckoutSession(_ context.Context, id string) (*external.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundSession, "no session", nil)
	}
	return s, nil
}

func (f *fakeProcessor) CancelAtPeriodEnd(_ context.Context, id string) (*external.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls = append(f.cancelCalls, id)
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return f.cancelSub, nil
}

func (f *fakeProcessor) GetSubscription(_ context.Context, id string) (*external.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.subErrs[id]; err != nil {
		return nil, err
	}
	if s, ok := f.subs[id]; ok {
		return s, nil
	}
	return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamStripe, "missing", nil,
		map[string]any{"not_found": true})
}

// memProfiles is an in-memory ProfileStore with the same ordering and
// event-id guards as the SQL implementation.
type memProfiles struct {
	mu           sync.Mutex
	profiles     map[string]*types.Profile
	lastEventIDs map[string]string

	getErr    error
	grantErr  error
	revokeErr error
	listErr   error
	markErr   error

	listCalls int
}

func newMemProfiles(profiles ...types.Profile) *memProfiles {
	m := &memProfiles{profiles: map[string]*types.Profile{}, lastEventIDs: map[string]string{}}
	for i := range profiles {
		p := profiles[i]
		m.profiles[p.UserID] = &p
	}
	return m
}

func (m *memProfiles) get(userID string) types.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[userID]; ok {
		return *p
	}
	return types.Profile{}
}

func (m *memProfiles) GetByUserID(_ context.Context, userID string) (*types.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	cp := *p
	return &cp, nil
}

func (m *memProfiles) GrantPremium(_ context.Context, g types.PremiumGrant) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grantErr != nil {
		return false, m.grantErr
	}
	p, ok := m.profiles[g.UserID]
	if !ok {
		p = &types.Profile{UserID: g.UserID, AccessLevel: types.AccessFree}
		m.profiles[g.UserID] = p
	}
	if p.LastEventAt != nil && p.LastEventAt.After(g.EventAt) {
		return false, nil
	}
	if g.EventID != "" && m.lastEventIDs[g.UserID] == g.EventID {
		return false, nil
	}
	m.lastEventIDs[g.UserID] = g.EventID
	p.AccessLevel = types.AccessPremium
	if g.Email != "" {
		p.Email = g.Email
	}
	if g.StripeCustomerID != "" {
		p.StripeCustomerID = g.StripeCustomerID
	}
	if p.SubscriptionType != types.SubscriptionLifetime {
		p.SubscriptionType = g.Kind
		p.StripeSubscriptionID = g.StripeSubscriptionID
	}
	p.CancelAt = nil
	at := g.EventAt
	p.LastEventAt = &at
	return true, nil
}

func (m *memProfiles) RevokeBySubscription(_ context.Context, subID string, eventAt time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revokeErr != nil {
		return "", m.revokeErr
	}
	for _, p := range m.profiles {
		if p.StripeSubscriptionID != subID || p.SubscriptionType == types.SubscriptionLifetime {
			continue
		}
		if p.LastEventAt != nil && p.LastEventAt.After(eventAt) {
			return "", nil
		}
		p.AccessLevel = types.AccessFree
		p.StripeSubscriptionID = ""
		p.SubscriptionType = ""
		p.CancelAt = nil
		at := eventAt
		p.LastEventAt = &at
		return p.UserID, nil
	}
	return "", nil
}

func (m *memProfiles) MarkCancelScheduled(_ context.Context, userID string, cancelAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	p, ok := m.profiles[userID]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	at := cancelAt
	p.CancelAt = &at
	return nil
}

func (m *memProfiles) ListActiveSubscriptions(_ context.Context, after string, limit int) ([]types.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []types.Profile
	for _, p := range m.profiles {
		if p.AccessLevel == types.AccessPremium && p.StripeSubscriptionID != "" &&
			p.SubscriptionType != types.SubscriptionLifetime && p.UserID > after {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memLedger struct {
	mu      sync.Mutex
	seen    map[string]bool
	seenErr error
	marks   int
}

func newMemLedger() *memLedger { return &memLedger{seen: map[string]bool{}} }

func (l *memLedger) Seen(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seenErr != nil {
		return false, l.seenErr
	}
	return l.seen[id], nil
}

func (l *memLedger) MarkProcessed(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.marks++
	l.seen[id] = true
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.AccessChanged
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt types.AccessChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	sweeps   [][3]int
}

func (o *recordingObserver) ObserveEvent(_, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) ObserveSweep(checked, revoked, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sweeps = append(o.sweeps, [3]int{checked, revoked, failed})
}
