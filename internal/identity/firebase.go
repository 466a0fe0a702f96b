package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"edgealtar/internal/types"
)

// firebaseJWKSURL serves the public keys for Firebase ID tokens.
const firebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

// FirebaseIssuer returns the ID token issuer for a Firebase project.
func FirebaseIssuer(projectID string) string {
	return "https://securetoken.google.com/" + projectID
}

// FirebaseVerifier validates Firebase Auth ID tokens for one project.
// Signing keys come from a jwksCache, so a key outage is reported as
// upstream_identity before any token check runs.
type FirebaseVerifier struct {
	projectID string
	keys      keySource
	now       func() time.Time
}

// NewFirebaseVerifier verifies against Google's published keys. It returns
// nil when projectID is empty.
func NewFirebaseVerifier(projectID string, logger *slog.Logger) *FirebaseVerifier {
	if projectID == "" {
		return nil
	}
	return newFirebaseVerifier(projectID,
		newJWKSCache("firebase", firebaseJWKSURL, defaultJWKSRefresh, nil, logger), nil)
}

func newFirebaseVerifier(projectID string, keys keySource, now func() time.Time) *FirebaseVerifier {
	return &FirebaseVerifier{projectID: projectID, keys: keys, now: now}
}

type firebaseClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// Verify checks signature, issuer, audience and expiry.
func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (*types.Identity, error) {
	set, err := v.keys.Keys(ctx)
	if err != nil {
		return nil, err
	}
	pubs, err := publicKeys(set)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamIdentity, "firebase signing keys unusable", err)
	}

	verifier := oidc.NewVerifier(FirebaseIssuer(v.projectID), &oidc.StaticKeySet{PublicKeys: pubs}, &oidc.Config{
		ClientID:             v.projectID,
		SupportedSigningAlgs: []string{oidc.RS256},
		Now:                  v.now,
	})
	idToken, err := verifier.Verify(ctx, token)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, errExpired(err)
		}
		return nil, errInvalid("firebase token rejected", err)
	}
	if idToken.Subject == "" {
		return nil, errInvalid("firebase token rejected", errNoSubject)
	}

	var claims firebaseClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, errInvalid("firebase token claims unreadable", err)
	}

	return &types.Identity{
		UserID:   idToken.Subject,
		Email:    claims.Email,
		Provider: types.IdentityProviderFirebase,
	}, nil
}
