// Package cache holds the processed-event ledger that lets the webhook skip
// billing events it has already applied. The profile upsert stays the
// correctness mechanism; the ledger only saves work on redelivery.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"edgealtar/internal/config"
	"edgealtar/internal/types"
)

// EventLedger records billing events that were fully processed.
type EventLedger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// redisStore is the subset of the go-redis client the ledger uses.
type redisStore interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisLedger stores one key per processed event with a TTL longer than the
// processor's redelivery window.
type RedisLedger struct {
	store  redisStore
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisClient parses the Redis URL and verifies connectivity.
func NewRedisClient(ctx context.Context, cfg config.CacheConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisLedger wraps a go-redis client.
func NewRedisLedger(store redisStore, cfg config.CacheConfig, logger *slog.Logger) *RedisLedger {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.EventTTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisLedger{store: store, prefix: cfg.KeyPrefix, ttl: ttl, logger: logger}
}

func (l *RedisLedger) key(eventID string) string {
	return l.prefix + eventID
}

// Seen reports whether eventID was marked processed.
func (l *RedisLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := l.store.Exists(ctx, l.key(eventID)).Result()
	if err != nil {
		return false, types.NewAppError(types.ErrCodeUpstreamUnavailable, "event ledger lookup failed", err)
	}
	return n > 0, nil
}

// MarkProcessed records eventID with the configured TTL.
func (l *RedisLedger) MarkProcessed(ctx context.Context, eventID string) error {
	if err := l.store.Set(ctx, l.key(eventID), time.Now().UTC().Unix(), l.ttl).Err(); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "event ledger write failed", err)
	}
	return nil
}

// Check implements a health probe.
func (l *RedisLedger) Check(ctx context.Context) error {
	return l.store.Ping(ctx).Err()
}

// Name identifies the probe in /health output.
func (l *RedisLedger) Name() string { return "redis" }

// NoopLedger is used when no Redis URL is configured. Every event is treated
// as unseen.
type NoopLedger struct{}

func (NoopLedger) Seen(context.Context, string) (bool, error) { return false, nil }
func (NoopLedger) MarkProcessed(context.Context, string) error { return nil }

var (
	_ EventLedger = (*RedisLedger)(nil)
	_ EventLedger = NoopLedger{}
)
