package types

// AccessLevel is the entitlement a user has to premium content.
type AccessLevel string

const (
	AccessFree    AccessLevel = "free"
	AccessPremium AccessLevel = "premium"
)

// IsValid reports whether the level is one of the known access levels.
func (a AccessLevel) IsValid() bool {
	return a == AccessFree || a == AccessPremium
}

// SubscriptionKind identifies how premium access was purchased.
// The same values double as the plan names accepted at checkout.
type SubscriptionKind string

const (
	SubscriptionMonthly  SubscriptionKind = "monthly"
	SubscriptionAnnual   SubscriptionKind = "annual"
	SubscriptionLifetime SubscriptionKind = "lifetime"
)

// AllSubscriptionKinds lists the purchasable plans in display order.
var AllSubscriptionKinds = []SubscriptionKind{
	SubscriptionMonthly,
	SubscriptionAnnual,
	SubscriptionLifetime,
}

// IsValid reports whether k names a known plan.
func (k SubscriptionKind) IsValid() bool {
	switch k {
	case SubscriptionMonthly, SubscriptionAnnual, SubscriptionLifetime:
		return true
	}
	return false
}

// IsRecurring is true for plans backed by a processor subscription.
func (k SubscriptionKind) IsRecurring() bool {
	return k == SubscriptionMonthly || k == SubscriptionAnnual
}

// AccessChangeSource records which path changed a profile's access level.
type AccessChangeSource string

const (
	AccessSourceCheckout   AccessChangeSource = "checkout_completed"
	AccessSourceSubDeleted AccessChangeSource = "subscription_deleted"
	AccessSourceSweep      AccessChangeSource = "reconciliation_sweep"
)

// Element is a spell's elemental affinity.
type Element string

const (
	ElementEarth  Element = "earth"
	ElementAir    Element = "air"
	ElementFire   Element = "fire"
	ElementWater  Element = "water"
	ElementSpirit Element = "spirit"
)

// MoonPhase is the lunar phase a spell is best worked in.
type MoonPhase string

const (
	MoonNew    MoonPhase = "new"
	MoonWaxing MoonPhase = "waxing"
	MoonFull   MoonPhase = "full"
	MoonWaning MoonPhase = "waning"
	MoonAny    MoonPhase = "any"
)

// Experience is the practitioner's self-reported level from the quiz.
type Experience string

const (
	ExperienceBeginner     Experience = "beginner"
	ExperienceIntermediate Experience = "intermediate"
	ExperienceAdvanced     Experience = "advanced"
)
