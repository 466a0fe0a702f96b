package types

import (
	"time"
)

// Profile is the per-user record holding the access level and the
// processor identifiers needed to manage the subscription.
// The access level on a Profile is the sole source of truth for content gating.
type Profile struct {
	UserID               string           `json:"user_id" db:"user_id"`
	Email                string           `json:"email,omitempty" db:"email"`
	AccessLevel          AccessLevel      `json:"access_level" db:"access_level"`
	StripeCustomerID     string           `json:"-" db:"stripe_customer_id"`
	StripeSubscriptionID string           `json:"-" db:"stripe_subscription_id"`
	SubscriptionType     SubscriptionKind `json:"subscription_type,omitempty" db:"subscription_type"`
	CancelAt             *time.Time       `json:"cancel_at,omitempty" db:"cancel_at"`
	LastEventAt          *time.Time       `json:"-" db:"last_event_at"`
	CreatedAt            time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at" db:"updated_at"`
}

// IsPremium reports whether the profile currently unlocks premium content.
func (p *Profile) IsPremium() bool {
	return p != nil && p.AccessLevel == AccessPremium
}

// PremiumGrant carries the fields written when a checkout completes.
// EventAt is the processor's event creation time and orders competing writes.
type PremiumGrant struct {
	UserID               string
	Email                string
	StripeCustomerID     string
	StripeSubscriptionID string
	Kind                 SubscriptionKind
	EventID              string
	EventAt              time.Time
}

// AccessChanged is published after a profile's access level changes.
// Consumers use it to refresh caches or notify clients.
type AccessChanged struct {
	ID               string             `json:"id"`
	UserID           string             `json:"user_id"`
	AccessLevel      AccessLevel        `json:"access_level"`
	SubscriptionType SubscriptionKind   `json:"subscription_type,omitempty"`
	Source           AccessChangeSource `json:"source"`
	EventID          string             `json:"event_id,omitempty"`
	OccurredAt       time.Time          `json:"occurred_at"`
}

// Spell is a catalog entry. Body is withheld from free users on premium spells.
type Spell struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	Category   string     `json:"category" db:"category"`
	Intent     string     `json:"intent" db:"intent"`
	Element    Element    `json:"element" db:"element"`
	MoonPhase  MoonPhase  `json:"moon_phase" db:"moon_phase"`
	Difficulty Experience `json:"difficulty" db:"difficulty"`
	IsPremium  bool       `json:"is_premium" db:"is_premium"`
	Summary    string     `json:"summary" db:"summary"`
	Body       string     `json:"body,omitempty" db:"body"`
	Locked     bool       `json:"locked,omitempty" db:"-"`
}

// Favorite links a user to a saved spell.
type Favorite struct {
	UserID    string    `json:"-" db:"user_id"`
	SpellID   string    `json:"spell_id" db:"spell_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// QuizAnswers are the inputs to the spell recommendation quiz.
type QuizAnswers struct {
	Intent     string     `json:"intent" validate:"required,max=64"`
	Element    Element    `json:"element" validate:"omitempty,oneof=earth air fire water spirit"`
	MoonPhase  MoonPhase  `json:"moon_phase" validate:"omitempty,oneof=new waxing full waning any"`
	Experience Experience `json:"experience" validate:"omitempty,oneof=beginner intermediate advanced"`
}

// ScoredSpell is a spell with its ranking score.
type ScoredSpell struct {
	Spell Spell `json:"spell"`
	Score int   `json:"score"`
}
