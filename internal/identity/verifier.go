// Package identity verifies bearer tokens issued by the identity providers
// the web client signs in with. During the Firebase to Supabase migration
// both issuers are accepted through ChainVerifier.
package identity

import (
	"context"
	"errors"
	"log/slog"

	"edgealtar/internal/config"
	"edgealtar/internal/types"
)

// Verifier resolves a raw bearer token to a verified caller.
type Verifier interface {
	Verify(ctx context.Context, token string) (*types.Identity, error)
}

// ChainVerifier tries each verifier in order and returns the first success.
type ChainVerifier struct {
	verifiers []Verifier
	logger    *slog.Logger
}

// NewChainVerifier builds a chain. Nil entries are skipped.
func NewChainVerifier(logger *slog.Logger, verifiers ...Verifier) *ChainVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	c := &ChainVerifier{logger: logger}
	for _, v := range verifiers {
		if v != nil {
			c.verifiers = append(c.verifiers, v)
		}
	}
	return c
}

// Len reports how many verifiers are configured.
func (c *ChainVerifier) Len() int { return len(c.verifiers) }

// Verify returns the first successful verification. When every verifier
// rejects the token, an expiry outranks other rejections, and key-fetch
// failures surface only if no verifier could make a decision.
func (c *ChainVerifier) Verify(ctx context.Context, token string) (*types.Identity, error) {
	if len(c.verifiers) == 0 {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "no identity provider configured", nil)
	}

	var (
		expired  error
		rejected error
		upstream error
	)
	for _, v := range c.verifiers {
		id, err := v.Verify(ctx, token)
		if err == nil {
			return id, nil
		}
		switch {
		case types.HasCode(err, types.ErrCodeAuthTokenExpired):
			expired = err
		case types.IsInfrastructure(err):
			upstream = err
		default:
			rejected = err
		}
	}

	switch {
	case expired != nil:
		return nil, expired
	case rejected != nil:
		if upstream != nil {
			c.logger.WarnContext(ctx, "identity provider unavailable during verification", "error", upstream)
		}
		return nil, rejected
	default:
		return nil, upstream
	}
}

// New builds the verifier chain from configuration. Supabase is tried first
// since new accounts are created there.
func New(cfg config.IdentityConfig, logger *slog.Logger) (*ChainVerifier, error) {
	if !cfg.Configured() {
		return nil, errors.New("identity: no Supabase or Firebase settings configured")
	}
	var verifiers []Verifier
	if sv := NewSupabaseVerifier(SupabaseConfig{
		JWTSecret: cfg.SupabaseJWTSecret,
		JWKSURL:   cfg.SupabaseJWKSURL,
		Audience:  cfg.SupabaseAudience,
		Logger:    logger,
	}); sv != nil {
		verifiers = append(verifiers, sv)
	}
	if fv := NewFirebaseVerifier(cfg.FirebaseProjectID, logger); fv != nil {
		verifiers = append(verifiers, fv)
	}
	return NewChainVerifier(logger, verifiers...), nil
}

// errInvalid wraps a verification failure as auth_token_invalid.
func errInvalid(msg string, err error) error {
	return types.NewAppError(types.ErrCodeAuthTokenInvalid, msg, err)
}

func errExpired(err error) error {
	return types.NewAppError(types.ErrCodeAuthTokenExpired, "token has expired", err)
}

var errNoSubject = errors.New("token has no subject")
