// Package config defines the configuration structure for the Edge & Altar
// billing service. Configuration is loaded once at process start (or Lambda
// cold start) and is immutable thereafter.
//
// Values are resolved from the OS environment first and then from a dotenv
// file. Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"edgealtar/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
// Sub-components receive only the config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"edgealtar-billing"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Billing       BillingConfig
	Identity      IdentityConfig
	Cache         CacheConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// IsLocal reports whether the process runs against local stubs.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public web app URL for checkout return URLs (no trailing slash).
	// Optional: checkout reports a FailedPrecondition when it is empty.
	AppBaseURL     string        `envconfig:"APP_BASE_URL" validate:"omitempty,url"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// AccessEventsQueueURL receives AccessChanged messages. Empty disables publishing.
	AccessEventsQueueURL string `envconfig:"ACCESS_EVENTS_QUEUE_URL" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds Stripe credentials, the webhook signing secret, and the
// price identifier for each plan. An empty price id marks the plan as not
// deployed.
type BillingConfig struct {
	StripeSecretKey     SecretString  `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString  `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripeAPIBase       string        `envconfig:"STRIPE_API_BASE" default:"https://api.stripe.com" validate:"url"`
	WebhookTolerance    time.Duration `envconfig:"STRIPE_WEBHOOK_TOLERANCE" default:"5m"`

	PriceMonthly  string `envconfig:"STRIPE_PRICE_MONTHLY"`
	PriceAnnual   string `envconfig:"STRIPE_PRICE_ANNUAL"`
	PriceLifetime string `envconfig:"STRIPE_PRICE_LIFETIME"`

	// SweepConcurrency bounds parallel Stripe lookups during reconciliation.
	SweepConcurrency int `envconfig:"SWEEP_CONCURRENCY" default:"4" validate:"min=1,max=32"`
	SweepPageSize    int `envconfig:"SWEEP_PAGE_SIZE" default:"100" validate:"min=1,max=1000"`
}

// IdentityConfig selects which token issuers are trusted. At least one of the
// Supabase or Firebase settings must be present.
type IdentityConfig struct {
	SupabaseJWTSecret SecretString `envconfig:"SUPABASE_JWT_SECRET"`
	SupabaseJWKSURL   string       `envconfig:"SUPABASE_JWKS_URL" validate:"omitempty,url"`
	SupabaseAudience  string       `envconfig:"SUPABASE_JWT_AUDIENCE" default:"authenticated"`
	FirebaseProjectID string       `envconfig:"FIREBASE_PROJECT_ID"`
}

// Configured reports whether any identity provider is set up.
func (c IdentityConfig) Configured() bool {
	return c.SupabaseJWTSecret.IsSet() || c.SupabaseJWKSURL != "" || c.FirebaseProjectID != ""
}

// CacheConfig holds the optional Redis connection used as the processed-event
// ledger. Empty URL disables it.
type CacheConfig struct {
	RedisURL  SecretString  `envconfig:"REDIS_URL"`
	EventTTL  time.Duration `envconfig:"EVENT_LEDGER_TTL" default:"72h"`
	KeyPrefix string        `envconfig:"EVENT_LEDGER_PREFIX" default:"edgealtar:stripe_event:"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace  string `envconfig:"METRIC_NAMESPACE" default:"EdgeAltar"`
	EnableCloudWatch bool   `envconfig:"ENABLE_CLOUDWATCH_METRICS" default:"false"`
	EnablePrometheus bool   `envconfig:"ENABLE_PROMETHEUS" default:"true"`

	// PushgatewayURL receives the reconciler job's sweep totals. Empty disables pushing.
	PushgatewayURL string `envconfig:"PROMETHEUS_PUSHGATEWAY_URL" validate:"omitempty,url"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
