// Package metrics exposes service telemetry. Webhook and sweep outcomes go to
// a Prometheus registry served at /metrics; per-request metrics can also be
// shipped to CloudWatch when running on Lambda.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Prometheus owns a private registry so tests can build independent
// instances without clashing on global registration.
type Prometheus struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
	sweepProfiles   *prometheus.CounterVec
}

// NewPrometheus registers all collectors under namespace.
func NewPrometheus(namespace string) *Prometheus {
	ns := sanitizeNamespace(namespace)
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration by route.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "route", "status"},
		),
		webhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "webhook",
				Name:      "events_total",
				Help:      "Billing events received, by type and reconciliation outcome.",
			},
			[]string{"event_type", "outcome"},
		),
		webhookDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "webhook",
				Name:      "processing_seconds",
				Help:      "Time spent reconciling one billing event.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		sweepProfiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "sweep",
				Name:      "profiles_total",
				Help:      "Profiles examined by the access sweep, by result.",
			},
			[]string{"result"},
		),
	}
	p.registry.MustRegister(
		p.requestDuration,
		p.requestTotal,
		p.webhookEvents,
		p.webhookDuration,
		p.sweepProfiles,
	)
	return p
}

// RecordRequest satisfies core.MetricsCollector.
func (p *Prometheus) RecordRequest(method, endpoint, status string, duration time.Duration) {
	p.requestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
	p.requestTotal.WithLabelValues(method, endpoint, status).Inc()
}

// ObserveEvent records one reconciled billing event.
func (p *Prometheus) ObserveEvent(eventType, outcome string, duration time.Duration) {
	p.webhookEvents.WithLabelValues(eventType, outcome).Inc()
	p.webhookDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// ObserveSweep records the results of one sweep run.
func (p *Prometheus) ObserveSweep(checked, revoked, failed int) {
	p.sweepProfiles.WithLabelValues("checked").Add(float64(checked))
	p.sweepProfiles.WithLabelValues("revoked").Add(float64(revoked))
	p.sweepProfiles.WithLabelValues("failed").Add(float64(failed))
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Push sends the whole registry to a Pushgateway under job. Short-lived
// jobs use it instead of being scraped.
func (p *Prometheus) Push(ctx context.Context, gatewayURL, job string) error {
	return push.New(gatewayURL, job).Gatherer(p.registry).PushContext(ctx)
}

// Registry exposes the underlying registry for tests and extra collectors.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// sanitizeNamespace lowercases and replaces characters Prometheus rejects.
func sanitizeNamespace(ns string) string {
	out := make([]byte, 0, len(ns))
	for i := 0; i < len(ns); i++ {
		c := ns[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		case c >= 'a' && c <= 'z', c == '_', c >= '0' && c <= '9' && i > 0:
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// StatusClass buckets an HTTP status for low-cardinality labels.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
