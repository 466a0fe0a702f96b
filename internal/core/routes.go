package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"edgealtar/internal/types"
)

// defaultRequestTimeout applies when the config does not set one. In Lambda
// it should sit below the function timeout.
const defaultRequestTimeout = 15 * time.Second

// defaultRedactedHeaders are masked in request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Stripe-Signature",
}

// MountRoutes defines the top-level routing hierarchy.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	// Bearer-authenticated API.
	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.AuthMiddleware)
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	// Signature-authenticated and public routes.
	for _, registrar := range s.PublicRouteRegistrars {
		registrar(s.router)
	}

	s.router.Get("/health", s.HandleHealth)
	if s.MetricsHandler != nil {
		s.router.Method(http.MethodGet, "/metrics", s.MetricsHandler)
	}
}

// registerGlobalMiddleware applies middleware in strict order.
//
//  1. Recoverer        - outermost so every panic becomes a JSON 500.
//  2. ContextTimeout   - soft deadline for datastore and processor calls.
//  3. RequestID        - correlation id for logs and error bodies.
//  4. SecurityHeaders
//  5. RequestLogger    - structured access log with redacted headers.
//  6. CORS             - answers OPTIONS preflight before any auth runs.
//  7. Metrics
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(s.MetricsMiddleware)
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware reuses an inbound X-Request-Id or mints a new one, and
// echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// generateRequestID returns 16 random bytes as 32 hex characters.
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "fallback-" + hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(b)
}
