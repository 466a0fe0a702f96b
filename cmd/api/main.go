// Package main is the entry point for the Edge & Altar billing API.
//
// It loads configuration, connects the datastore, the optional Redis event
// ledger and the access events queue, and builds one chi router serving the
// authenticated /v1 surface and the public Stripe webhook.
//
// Inside AWS Lambda the router is driven by API Gateway HTTP API events. Any
// other environment runs a plain HTTP server with graceful shutdown on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"edgealtar/internal/api/handlers"
	"edgealtar/internal/billing"
	"edgealtar/internal/catalog"
	"edgealtar/internal/config"
	"edgealtar/internal/core"
	"edgealtar/internal/db"
	"edgealtar/internal/external"
	"edgealtar/internal/identity"
	"edgealtar/internal/metrics"
	"edgealtar/internal/platform/lambdahttp"
	"edgealtar/internal/platform/wiring"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// profileStore is everything the API needs from the profile repository.
type profileStore interface {
	billing.ProfileStore
	handlers.ProfileEnsurer
}

// serverDeps are the collaborators buildServer wires into handlers.
type serverDeps struct {
	Processor  external.PaymentProcessor
	Profiles   profileStore
	Spells     catalog.SpellStore
	Favorites  handlers.FavoriteStore
	Ledger     billing.EventLedger
	Publisher  billing.AccessPublisher
	Verifier   core.IdentityVerifier
	Prometheus *metrics.Prometheus
	Metrics    core.MetricsCollector
	Probes     []core.HealthProbe
	Closers    []func() error
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := wiring.NewLogger(cfg.LogLevel, cfg.Service)
	logger.Info("edge & altar API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	backends, err := wiring.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connecting backends: %w", err)
	}

	ledger, err := wiring.OpenLedger(ctx, cfg.Cache, backends, logger)
	if err != nil {
		_ = backends.Close()
		return fmt.Errorf("opening event ledger: %w", err)
	}

	verifier, err := identity.New(cfg.Identity, logger)
	if err != nil {
		_ = backends.Close()
		return fmt.Errorf("configuring identity verifier: %w", err)
	}

	var prom *metrics.Prometheus
	if cfg.Observability.EnablePrometheus {
		prom = metrics.NewPrometheus(cfg.Observability.MetricNamespace)
	}

	srv, err := buildServer(cfg, logger, serverDeps{
		Processor:  backends.Processor,
		Profiles:   backends.Profiles,
		Spells:     db.NewSpellRepository(backends.Pool),
		Favorites:  db.NewFavoriteRepository(backends.Pool),
		Ledger:     ledger,
		Publisher:  backends.Publisher,
		Verifier:   verifier,
		Prometheus: prom,
		Metrics:    wiring.RequestMetrics(cfg.Observability, backends.AWS, prom, logger),
		Probes:     backends.Probes,
		Closers:    backends.Closers,
	})
	if err != nil {
		_ = backends.Close()
		return fmt.Errorf("creating server: %w", err)
	}

	if wiring.IsLambda() {
		logger.Info("running in Lambda mode")
		lambda.Start(lambdahttp.New(srv.Handler()).Handle)
		return nil
	}

	return runHTTPServer(srv, cfg, logger)
}

// buildServer assembles the router from already-connected dependencies.
func buildServer(cfg *config.Config, logger *slog.Logger, d serverDeps) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}

	srv.Verifier = d.Verifier
	srv.Metrics = d.Metrics
	srv.HealthProbes = d.Probes
	srv.Closers = d.Closers
	if d.Prometheus != nil {
		srv.MetricsHandler = d.Prometheus.Handler()
	}

	var observer billing.EventObserver
	if d.Prometheus != nil {
		observer = d.Prometheus
	}

	plans := billing.NewPlanCatalog(cfg.Billing)
	issuer := billing.NewCheckoutIssuer(d.Processor, plans, d.Profiles, cfg.Server.AppBaseURL, logger)
	canceler := billing.NewCanceler(d.Processor, d.Profiles, logger)
	reconciler := billing.NewReconciler(billing.ReconcilerDeps{
		Processor: d.Processor,
		Profiles:  d.Profiles,
		Ledger:    d.Ledger,
		Publisher: d.Publisher,
		Observer:  observer,
		Logger:    logger,
	})
	spells := catalog.NewService(d.Spells, d.Profiles, logger)

	billingHandler := handlers.NewBillingHandler(issuer, canceler, srv.Validator, logger)
	profileHandler := handlers.NewProfileHandler(d.Profiles, logger)
	catalogHandler := handlers.NewCatalogHandler(spells, d.Favorites, d.Profiles, srv.Validator, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(
		external.NewStripeVerifier(cfg.Billing.StripeWebhookSecret, cfg.Billing.WebhookTolerance),
		reconciler,
		logger,
	)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		billingHandler.RegisterRoutes,
		profileHandler.RegisterRoutes,
		catalogHandler.RegisterRoutes,
	)
	srv.PublicRouteRegistrars = append(srv.PublicRouteRegistrars, webhookHandler.RegisterRoutes)

	if len(plans.Available()) == 0 {
		logger.Warn("no plan prices configured; checkout will fail")
	}

	srv.MountRoutes()
	return srv, nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
