package identity

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"edgealtar/internal/types"
)

// keySource yields the current signing keys of an issuer.
type keySource interface {
	Keys(ctx context.Context) (jwk.Set, error)
}

// jwksCache holds a fetched JWKS and refetches it after refresh. A failed
// refresh keeps serving the previous set when there is one; a failure with
// nothing cached is an upstream_identity error.
type jwksCache struct {
	name    string
	url     string
	refresh time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu        sync.Mutex
	keys      jwk.Set
	fetchedAt time.Time
}

func newJWKSCache(name, url string, refresh time.Duration, now func() time.Time, logger *slog.Logger) *jwksCache {
	if refresh <= 0 {
		refresh = defaultJWKSRefresh
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &jwksCache{name: name, url: url, refresh: refresh, now: now, logger: logger}
}

func (c *jwksCache) Keys(ctx context.Context) (jwk.Set, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.keys != nil && c.now().Sub(c.fetchedAt) < c.refresh {
		return c.keys, nil
	}

	set, err := jwk.Fetch(ctx, c.url)
	if err != nil {
		if c.keys != nil {
			c.logger.WarnContext(ctx, "jwks refresh failed; using cached keys",
				"issuer", c.name,
				"error", err,
			)
			return c.keys, nil
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamIdentity,
			fmt.Sprintf("fetching %s jwks from %s", c.name, c.url), err)
	}
	c.keys = set
	c.fetchedAt = c.now()
	return set, nil
}

// publicKeys exports every key in set to its crypto form.
func publicKeys(set jwk.Set) ([]crypto.PublicKey, error) {
	out := make([]crypto.PublicKey, 0, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		var raw any
		if err := jwk.Export(key, &raw); err != nil {
			return nil, fmt.Errorf("exporting key %d: %w", i, err)
		}
		out = append(out, raw)
	}
	if len(out) == 0 {
		return nil, errEmptyKeySet
	}
	return out, nil
}

var errEmptyKeySet = errors.New("key set is empty")
