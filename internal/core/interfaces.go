package core

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"

	"edgealtar/internal/types"
)

// IdentityVerifier resolves a bearer token to a verified caller.
// Implementations return an AppError with an auth_* code on rejection and an
// upstream_* code when the issuer's keys cannot be fetched.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*types.Identity, error)
}

// MetricsCollector records request latency and count for every HTTP request.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a handler group onto a router.
type RouteRegistrar func(r chi.Router)
