package identity

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"edgealtar/internal/types"
)

const (
	defaultJWKSRefresh = 10 * time.Minute
	clockSkew          = 30 * time.Second
)

// SupabaseConfig configures SupabaseVerifier. At least one of JWTSecret
// (legacy HS256 projects) or JWKSURL (asymmetric signing keys) must be set.
type SupabaseConfig struct {
	JWTSecret   types.SecretString
	JWKSURL     string
	Audience    string
	JWKSRefresh time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

// SupabaseVerifier validates Supabase Auth access tokens.
type SupabaseVerifier struct {
	cfg  SupabaseConfig
	keys keySource
}

// NewSupabaseVerifier returns nil when neither a secret nor a JWKS URL is
// configured.
func NewSupabaseVerifier(cfg SupabaseConfig) *SupabaseVerifier {
	if !cfg.JWTSecret.IsSet() && cfg.JWKSURL == "" {
		return nil
	}
	if cfg.JWKSRefresh <= 0 {
		cfg.JWKSRefresh = defaultJWKSRefresh
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	v := &SupabaseVerifier{cfg: cfg}
	if cfg.JWKSURL != "" {
		v.keys = newJWKSCache("supabase", cfg.JWKSURL, cfg.JWKSRefresh, cfg.Now, cfg.Logger)
	}
	return v
}

// Verify parses and validates token, requiring a subject claim.
func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (*types.Identity, error) {
	opts := []jwt.ParseOption{
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(clockSkew),
		jwt.WithClock(jwt.ClockFunc(v.cfg.Now)),
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	var (
		parsed jwt.Token
		err    error
	)
	if v.cfg.JWKSURL != "" && !isHS256(token) {
		keys, fetchErr := v.keys.Keys(ctx)
		if fetchErr != nil {
			return nil, fetchErr
		}
		parsed, err = jwt.ParseString(token, append(opts, jwt.WithKeySet(keys))...)
	} else if v.cfg.JWTSecret.IsSet() {
		key := []byte(v.cfg.JWTSecret.Unmask())
		parsed, err = jwt.ParseString(token, append(opts, jwt.WithKey(jwa.HS256(), key))...)
	} else {
		return nil, errInvalid("symmetric tokens are not accepted", nil)
	}
	if err != nil {
		if errors.Is(err, jwt.TokenExpiredError()) {
			return nil, errExpired(err)
		}
		return nil, errInvalid("supabase token rejected", err)
	}

	sub, ok := parsed.Subject()
	if !ok || sub == "" {
		return nil, errInvalid("supabase token rejected", errNoSubject)
	}

	var email string
	_ = parsed.Get("email", &email)

	return &types.Identity{
		UserID:   sub,
		Email:    email,
		Provider: types.IdentityProviderSupabase,
	}, nil
}

// isHS256 peeks at the unverified JOSE header. The result only selects which
// key source to verify against.
func isHS256(token string) bool {
	header, _, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}
	decoded, err := decodeSegment(header)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ReplaceAll(string(decoded), " ", ""), `"alg":"HS256"`)
}

func decodeSegment(seg string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(seg, "="))
}
