// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
//  6. Check cross-field requirements (an identity provider must be trusted).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// envLookup matches os.LookupEnv and allows injection for testing.
type envLookup func(key string) (string, bool)

// loaderDeps holds the injectable dependencies for the loader.
type loaderDeps struct {
	lookupEnv  envLookup
	loadDotenv func() error
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv:  os.LookupEnv,
		loadDotenv: func() error { return godotenv.Load() },
	}
}

// LoadConfig loads and validates the service configuration.
func LoadConfig() (*Config, error) {
	return loadConfigWithDeps(defaultDeps())
}

func loadConfigWithDeps(deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv does not override variables already present in the environment.
	_ = deps.loadDotenv()

	if _, ok := deps.lookupEnv("APP_ENV"); !ok {
		return nil, &ConfigError{
			Type:    ErrMissingEnv,
			Message: "APP_ENV is not set",
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if !cfg.Identity.Configured() && !cfg.IsLocal() {
		return nil, &ConfigError{
			Type:    ErrMissingEnv,
			Message: "no identity provider configured: set SUPABASE_JWT_SECRET, SUPABASE_JWKS_URL or FIREBASE_PROJECT_ID",
		}
	}

	return &cfg, nil
}

// LoadDatabaseConfig resolves only the datastore settings. Operator commands
// that touch nothing but the database use it so they do not need billing or
// identity secrets.
func LoadDatabaseConfig() (DatabaseConfig, error) {
	return loadDatabaseConfigWithDeps(defaultDeps())
}

func loadDatabaseConfigWithDeps(deps loaderDeps) (DatabaseConfig, error) {
	_ = deps.loadDotenv()

	var cfg DatabaseConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return DatabaseConfig{}, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process database configuration",
			Err:     err,
		}
	}
	if err := validator.New().Struct(cfg); err != nil {
		return DatabaseConfig{}, &ConfigError{
			Type:    ErrValidation,
			Message: "database configuration validation failed",
			Err:     err,
		}
	}
	return cfg, nil
}
