package types

import (
	"context"
)

// IdentityProvider names the token issuer that vouched for an Identity.
type IdentityProvider string

const (
	IdentityProviderSupabase IdentityProvider = "supabase"
	IdentityProviderFirebase IdentityProvider = "firebase"
)

// Identity is the verified caller of an authenticated request.
// It is produced only by an identity verifier and never from request bodies.
type Identity struct {
	UserID   string
	Email    string // optional; empty when the provider did not supply one
	Provider IdentityProvider
}

// Context Keys
type contextKey string

const (
	identityKey  contextKey = "identity"
	requestIDKey contextKey = "request_id"
)

// WithIdentity stores the verified Identity in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity retrieves the Identity from the context.
func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
