// Package core provides the HTTP chassis for the billing service.
// It builds one chi router that serves both the local net/http listener and
// the Lambda adapter, and applies the cross-cutting middleware (recovery,
// request ids, logging, CORS, metrics, bearer authentication) before requests
// reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"edgealtar/internal/config"
)

// Server holds the dependencies shared by every route.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector
	Verifier  IdentityVerifier

	// HealthProbes are run by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount bearer-authenticated handlers under /v1.
	V1RouteRegistrars []RouteRegistrar

	// PublicRouteRegistrars mount unauthenticated handlers at the root
	// (the processor webhook authenticates by signature instead).
	PublicRouteRegistrars []RouteRegistrar

	// MetricsHandler, when set, is served at GET /metrics.
	MetricsHandler http.Handler

	// Closers are invoked in order on Shutdown.
	Closers []func() error

	router *chi.Mux
}

// NewServer validates critical dependencies and prepares an empty router.
// The caller mounts routes with MountRoutes after appending registrars.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases pooled resources (database pool, Redis client).
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var firstErr error
	for _, closeFn := range s.Closers {
		if err := closeFn(); err != nil {
			s.Logger.ErrorContext(ctx, "error closing resource", "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("closing resources: %w", err)
			}
		}
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return firstErr
}
