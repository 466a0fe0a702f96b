// Package billing holds the payment flows: plan resolution, checkout session
// issuing, subscription cancellation, webhook event reconciliation and the
// pull-based access sweep.
package billing

import (
	"fmt"

	"edgealtar/internal/config"
	"edgealtar/internal/external"
	"edgealtar/internal/types"
)

// Plan is a purchasable plan as deployed.
type Plan struct {
	Kind    types.SubscriptionKind
	PriceID string
	Mode    string
}

// PlanCatalog is the single source of truth for which plans can be bought.
type PlanCatalog interface {
	// Resolve maps a plan name to its deployed price. Unknown names are
	// validation_invalid_plan; known plans without a price id are
	// precondition_config_missing.
	Resolve(name string) (Plan, error)

	// Available lists deployed plans in display order.
	Available() []Plan
}

type staticPlanCatalog struct {
	prices map[types.SubscriptionKind]string
}

// NewPlanCatalog builds the catalog from the configured price ids.
func NewPlanCatalog(cfg config.BillingConfig) PlanCatalog {
	return &staticPlanCatalog{prices: map[types.SubscriptionKind]string{
		types.SubscriptionMonthly:  cfg.PriceMonthly,
		types.SubscriptionAnnual:   cfg.PriceAnnual,
		types.SubscriptionLifetime: cfg.PriceLifetime,
	}}
}

func (c *staticPlanCatalog) Resolve(name string) (Plan, error) {
	kind := types.SubscriptionKind(name)
	if !kind.IsValid() {
		return Plan{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPlan,
			fmt.Sprintf("unknown plan %q", name), nil,
			map[string]any{"allowed": types.AllSubscriptionKinds})
	}
	price := c.prices[kind]
	if price == "" {
		return Plan{}, types.NewAppError(types.ErrCodePreconditionConfigMissing,
			fmt.Sprintf("plan %q is not configured", name), nil)
	}
	return Plan{Kind: kind, PriceID: price, Mode: ModeFor(kind)}, nil
}

func (c *staticPlanCatalog) Available() []Plan {
	plans := make([]Plan, 0, len(types.AllSubscriptionKinds))
	for _, kind := range types.AllSubscriptionKinds {
		if price := c.prices[kind]; price != "" {
			plans = append(plans, Plan{Kind: kind, PriceID: price, Mode: ModeFor(kind)})
		}
	}
	return plans
}

// ModeFor returns the checkout mode for a plan: recurring plans create a
// subscription, lifetime is a one-off payment.
func ModeFor(kind types.SubscriptionKind) string {
	if kind.IsRecurring() {
		return external.CheckoutModeSubscription
	}
	return external.CheckoutModePayment
}
