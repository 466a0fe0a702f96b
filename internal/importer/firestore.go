// Package importer carries user profiles over from the Firestore users
// export into the Postgres profiles table.
package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"edgealtar/internal/db"
	"edgealtar/internal/types"
)

// FirestoreUser is one document of the users collection. Exports either
// nest the fields under "data" or flatten them next to the id.
type FirestoreUser struct {
	ID               string        `json:"id"`
	UID              string        `json:"uid"`
	Email            string        `json:"email"`
	IsPremium        *bool         `json:"isPremium"`
	Tier             string        `json:"tier"`
	StripeCustomerID string        `json:"stripeCustomerId"`
	SubscriptionID   string        `json:"subscriptionId"`
	SubscriptionType string        `json:"subscriptionType"`
	UpdatedAt        FirestoreTime `json:"updatedAt"`
	CreatedAt        FirestoreTime `json:"createdAt"`
}

func (u *FirestoreUser) UnmarshalJSON(b []byte) error {
	type plain FirestoreUser
	var envelope struct {
		plain
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return err
	}
	*u = FirestoreUser(envelope.plain)
	if len(envelope.Data) == 0 || bytes.Equal(envelope.Data, []byte("null")) {
		return nil
	}

	var inner plain
	if err := json.Unmarshal(envelope.Data, &inner); err != nil {
		return fmt.Errorf("document %s: %w", u.UserID(), err)
	}
	if inner.ID == "" {
		inner.ID = u.ID
	}
	if inner.UID == "" {
		inner.UID = u.UID
	}
	*u = FirestoreUser(inner)
	return nil
}

// UserID is the Firebase uid the document is keyed by.
func (u *FirestoreUser) UserID() string {
	if u.UID != "" {
		return u.UID
	}
	return u.ID
}

// FirestoreTime accepts the shapes Firestore timestamps take in JSON exports:
// RFC 3339 strings, epoch milliseconds, and {"_seconds", "_nanoseconds"}.
type FirestoreTime struct {
	time.Time
}

func (t *FirestoreTime) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null" || s == `""`:
		return nil
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", str, err)
		}
		t.Time = parsed.UTC()
	case strings.HasPrefix(s, "{"):
		var ts struct {
			Seconds     *int64 `json:"_seconds"`
			Nanoseconds int64  `json:"_nanoseconds"`
			AltSeconds  *int64 `json:"seconds"`
			AltNanos    int64  `json:"nanos"`
		}
		if err := json.Unmarshal(b, &ts); err != nil {
			return err
		}
		switch {
		case ts.Seconds != nil:
			t.Time = time.Unix(*ts.Seconds, ts.Nanoseconds).UTC()
		case ts.AltSeconds != nil:
			t.Time = time.Unix(*ts.AltSeconds, ts.AltNanos).UTC()
		}
	default:
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("timestamp %s: %w", s, err)
		}
		t.Time = time.UnixMilli(ms).UTC()
	}
	return nil
}

// ParseExport reads a JSON array of user documents.
func ParseExport(r io.Reader) ([]FirestoreUser, error) {
	var users []FirestoreUser
	if err := json.NewDecoder(r).Decode(&users); err != nil {
		return nil, fmt.Errorf("parsing users export: %w", err)
	}
	return users, nil
}

// epoch stands in for documents without any timestamp. Rows stamped with it
// are inserted but never overwrite an existing profile.
var epoch = time.Unix(0, 0).UTC()

// ToProfile maps a document onto a profile row. ok is false when the
// document cannot be keyed, in which case reason says why.
func ToProfile(u FirestoreUser) (rec db.ProfileImport, ok bool, reason string) {
	userID := strings.TrimSpace(u.UserID())
	if userID == "" {
		return db.ProfileImport{}, false, "missing uid"
	}

	rec = db.ProfileImport{
		UserID:           userID,
		Email:            strings.TrimSpace(u.Email),
		AccessLevel:      types.AccessFree,
		StripeCustomerID: strings.TrimSpace(u.StripeCustomerID),
		UpdatedAt:        u.UpdatedAt.Time,
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = u.CreatedAt.Time
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = epoch
	}

	if !isPremium(u) {
		return rec, true, ""
	}
	rec.AccessLevel = types.AccessPremium
	rec.SubscriptionType = normalizeKind(u.SubscriptionType, u.SubscriptionID)
	if rec.SubscriptionType.IsRecurring() {
		rec.StripeSubscriptionID = strings.TrimSpace(u.SubscriptionID)
	}
	return rec, true, ""
}

func isPremium(u FirestoreUser) bool {
	if u.IsPremium != nil {
		return *u.IsPremium
	}
	switch strings.ToLower(strings.TrimSpace(u.Tier)) {
	case "premium", "pro", "paid":
		return true
	}
	return false
}

// normalizeKind maps the legacy subscriptionType spellings. Premium users
// without a recognisable type are lifetime when no subscription backs them
// and monthly otherwise.
func normalizeKind(raw, subscriptionID string) types.SubscriptionKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "monthly", "month":
		return types.SubscriptionMonthly
	case "annual", "yearly", "year":
		return types.SubscriptionAnnual
	case "lifetime", "one_time", "onetime":
		return types.SubscriptionLifetime
	}
	if strings.TrimSpace(subscriptionID) == "" {
		return types.SubscriptionLifetime
	}
	return types.SubscriptionMonthly
}
