// Package wiring builds the production collaborators shared by the API, the
// reconciler job and the ops CLI from one loaded Config.
package wiring

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"edgealtar/internal/billing"
	"edgealtar/internal/cache"
	"edgealtar/internal/config"
	"edgealtar/internal/core"
	"edgealtar/internal/db"
	"edgealtar/internal/external"
	"edgealtar/internal/metrics"
	"edgealtar/internal/queue"
)

// NewLogger creates a JSON slog.Logger at the given level.
func NewLogger(level, service string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler)
	if service != "" {
		logger = logger.With("service", service)
	}
	return logger
}

// IsLambda reports whether the process runs inside the AWS Lambda runtime.
func IsLambda() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// Backends are the stateful dependencies every entry point shares.
type Backends struct {
	Pool      *pgxpool.Pool
	Profiles  *db.ProfileRepository
	Processor external.PaymentProcessor

	// Publisher is nil when no access events queue is configured.
	Publisher billing.AccessPublisher
	AWS       aws.Config

	Probes  []core.HealthProbe
	Closers []func() error
}

// Close runs every closer in order and returns the first error.
func (b *Backends) Close() error {
	var firstErr error
	for _, fn := range b.Closers {
		if err := fn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Connect opens the database pool, resolves AWS credentials and builds the
// payment processor client.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	b := &Backends{
		Pool:      pool,
		Profiles:  db.NewProfileRepository(pool, logger),
		Processor: NewProcessor(cfg, logger),
		Probes: []core.HealthProbe{core.HealthProbeFunc{
			ProbeName: "database",
			Fn:        pool.Ping,
		}},
		Closers: []func() error{func() error { pool.Close(); return nil }},
	}

	awsCfg, err := LoadAWS(ctx, cfg.AWS)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.AWS = awsCfg

	if cfg.AWS.AccessEventsQueueURL != "" {
		client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		b.Publisher = queue.NewAccessEventPublisher(client, cfg.AWS.AccessEventsQueueURL, logger)
	}
	return b, nil
}

// LoadAWS resolves the default credential chain for the configured region.
func LoadAWS(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewProcessor returns the Stripe client, or the in-process stub when a
// local environment runs with the stub key.
func NewProcessor(cfg *config.Config, logger *slog.Logger) external.PaymentProcessor {
	key := cfg.Billing.StripeSecretKey.Unmask()
	if cfg.IsLocal() && key == external.StubSecretKey {
		logger.Warn("using stub payment processor")
		return external.NewStubProcessor(logger)
	}
	return external.NewStripeClient(nil, external.StripeClientConfig{
		SecretKey: key,
		BaseURL:   cfg.Billing.StripeAPIBase,
		Logger:    logger,
	})
}

// OpenLedger connects the Redis event ledger. Without a REDIS_URL the
// webhook runs on the profile upsert guard alone.
func OpenLedger(ctx context.Context, cfg config.CacheConfig, b *Backends, logger *slog.Logger) (billing.EventLedger, error) {
	if !cfg.RedisURL.IsSet() {
		logger.Info("event ledger disabled")
		return cache.NoopLedger{}, nil
	}
	client, err := cache.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ledger := cache.NewRedisLedger(client, cfg, logger)
	b.Probes = append(b.Probes, ledger)
	b.Closers = append(b.Closers, client.Close)
	return ledger, nil
}

// RequestMetrics assembles the request collectors enabled in cfg.
func RequestMetrics(cfg config.ObservabilityConfig, awsCfg aws.Config, prom *metrics.Prometheus, logger *slog.Logger) core.MetricsCollector {
	var fan metrics.Fanout
	if prom != nil {
		fan = append(fan, prom)
	}
	if cfg.EnableCloudWatch {
		fan = append(fan, metrics.NewCloudWatchCollector(cloudwatch.NewFromConfig(awsCfg), cfg.MetricNamespace, logger))
	}
	if len(fan) == 0 {
		return nil
	}
	return fan
}
