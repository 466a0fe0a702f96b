package core

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the whole health check.
const healthCheckTimeout = 2 * time.Second

// HealthProbe checks one critical dependency (database, Redis).
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthProbeFunc adapts a function to HealthProbe.
type HealthProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) error
}

func (p HealthProbeFunc) Name() string                    { return p.ProbeName }
func (p HealthProbeFunc) Check(ctx context.Context) error { return p.Fn(ctx) }

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every probe concurrently under healthCheckTimeout.
// It answers 200 when all pass and 503 when any fails or times out.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}

	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	type probeResult struct {
		name string
		err  error
	}

	// Buffered so late probes never block after the handler returns.
	results := make(chan probeResult, len(s.HealthProbes))
	for _, probe := range s.HealthProbes {
		go func(p HealthProbe) {
			var err error
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("probe panicked: %v", rec)
				}
				results <- probeResult{name: p.Name(), err: err}
			}()
			err = p.Check(ctx)
		}(probe)
	}

	resp.Components = make(map[string]componentStatus, len(s.HealthProbes))
	for _, probe := range s.HealthProbes {
		resp.Components[probe.Name()] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
	}

collect:
	for range s.HealthProbes {
		select {
		case res := <-results:
			if res.err != nil {
				resp.Components[res.name] = componentStatus{Status: "unhealthy", Message: res.err.Error()}
			} else {
				resp.Components[res.name] = componentStatus{Status: "healthy"}
			}
		case <-ctx.Done():
			break collect
		}
	}

	status := http.StatusOK
	for _, c := range resp.Components {
		if c.Status != "healthy" {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			break
		}
	}
	JSON(w, r, status, resp)
}
