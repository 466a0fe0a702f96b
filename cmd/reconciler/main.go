// Package main is the entry point for the access reconciler job.
//
// An EventBridge schedule invokes it as a Lambda function; outside Lambda it
// runs one sweep and exits. Each run asks Stripe for the state of every
// active recurring subscription and revokes premium access that a missed
// customer.subscription.deleted webhook left behind.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"edgealtar/internal/billing"
	"edgealtar/internal/config"
	"edgealtar/internal/metrics"
	"edgealtar/internal/platform/wiring"
)

// TaskAccessSweep is the only task this job understands.
const TaskAccessSweep = "access_sweep"

// runTimeout bounds one sweep, below the Lambda timeout.
const runTimeout = 10 * time.Minute

// SweepPayload is the EventBridge input. An empty Task means TaskAccessSweep.
type SweepPayload struct {
	Task string `json:"task"`
}

// SweepRunner is satisfied by billing.AccessSweeper.
type SweepRunner interface {
	Run(ctx context.Context) (billing.SweepReport, error)
}

// MetricsPusher ships the run's counters somewhere they outlive the process.
type MetricsPusher interface {
	Push(ctx context.Context) error
}

// Handler serves one scheduled invocation.
type Handler struct {
	Sweeper SweepRunner
	Pusher  MetricsPusher
	Logger  *slog.Logger
}

// Handle runs the sweep and returns a one-line summary for the invocation log.
func (h *Handler) Handle(ctx context.Context, payload SweepPayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	task := payload.Task
	if task == "" {
		task = TaskAccessSweep
	}
	if task != TaskAccessSweep {
		return "", fmt.Errorf("unknown task type: %q", task)
	}

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	report, err := h.Sweeper.Run(ctx)
	if h.Pusher != nil {
		if pushErr := h.Pusher.Push(ctx); pushErr != nil {
			logger.WarnContext(ctx, "failed to push sweep metrics", "error", pushErr)
		}
	}
	if err != nil {
		logger.ErrorContext(ctx, "access sweep failed",
			"error", err,
			"checked_before_error", report.Checked,
		)
		return "", fmt.Errorf("task %s failed: %w", task, err)
	}

	return fmt.Sprintf("task %s complete: %d checked, %d revoked, %d failed",
		task, report.Checked, report.Revoked, report.Failed), nil
}

// gatewayPusher pushes the Prometheus registry to a Pushgateway.
type gatewayPusher struct {
	prom *metrics.Prometheus
	url  string
}

func (g gatewayPusher) Push(ctx context.Context) error {
	return g.prom.Push(ctx, g.url, TaskAccessSweep)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := wiring.NewLogger(cfg.LogLevel, "edgealtar-reconciler")
	logger.Info("access reconciler starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	ctx := context.Background()
	backends, err := wiring.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connecting backends: %w", err)
	}
	defer func() { _ = backends.Close() }()

	prom := metrics.NewPrometheus(cfg.Observability.MetricNamespace)
	sweeper := billing.NewAccessSweeper(
		backends.Processor,
		backends.Profiles,
		backends.Publisher,
		prom,
		billing.SweepConfig{
			PageSize:    cfg.Billing.SweepPageSize,
			Concurrency: cfg.Billing.SweepConcurrency,
		},
		logger,
	)

	h := &Handler{Sweeper: sweeper, Logger: logger}
	if url := cfg.Observability.PushgatewayURL; url != "" {
		h.Pusher = gatewayPusher{prom: prom, url: url}
	}

	if wiring.IsLambda() {
		lambda.Start(h.Handle)
		return nil
	}

	result, err := h.Handle(ctx, SweepPayload{Task: TaskAccessSweep})
	if err != nil {
		return err
	}
	logger.Info(result)
	return nil
}
