// Package metrics defines the Prometheus collectors exported by the portal.
//
// Naming follows Prometheus conventions: a tribunal_ prefix, _total for counters
// and _seconds for duration histograms. A nil *Metrics is valid and records nothing,
// so components can take it as an optional dependency.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Metrics holds the portal collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	loginAttempts  *prometheus.CounterVec
	resolutions    *prometheus.CounterVec
	resolveSeconds prometheus.Histogram
	gateDecisions  *prometheus.CounterVec
	petitions      prometheus.Counter
	webhooks       *prometheus.CounterVec
	authContexts   prometheus.Gauge
}

// New creates the collectors on a fresh registry. Go runtime and process collectors
// are included when withRuntime is set.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tribunal_login_attempts_total",
			Help: "Password login attempts by outcome.",
		}, []string{"outcome"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tribunal_session_resolutions_total",
			Help: "Session resolutions by outcome.",
		}, []string{"outcome"}),
		resolveSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tribunal_session_resolve_duration_seconds",
			Help:    "Duration of session resolutions in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tribunal_gate_decisions_total",
			Help: "Role gate decisions by outcome.",
		}, []string{"outcome"}),
		petitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tribunal_petitions_submitted_total",
			Help: "Petitions accepted for analysis.",
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tribunal_webhook_dispatches_total",
			Help: "Outbound workflow webhook dispatches by result.",
		}, []string{"result"}),
		authContexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tribunal_auth_contexts",
			Help: "Browser sessions with a live auth context.",
		}),
	}

	m.registry.MustRegister(
		m.loginAttempts,
		m.resolutions,
		m.resolveSeconds,
		m.gateDecisions,
		m.petitions,
		m.webhooks,
		m.authContexts,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveLogin counts a login attempt; outcome is "success" or a failure reason.
func (m *Metrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

// ObserveResolve counts a session resolution and records its latency.
func (m *Metrics) ObserveResolve(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
	m.resolveSeconds.Observe(d.Seconds())
}

// ObserveGate counts a role gate decision.
func (m *Metrics) ObserveGate(outcome string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(outcome).Inc()
}

// PetitionSubmitted counts an accepted petition.
func (m *Metrics) PetitionSubmitted() {
	if m == nil {
		return
	}
	m.petitions.Inc()
}

// ObserveWebhook counts a webhook dispatch by result.
func (m *Metrics) ObserveWebhook(result string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(result).Inc()
}

// SetAuthContexts records the number of live auth contexts.
func (m *Metrics) SetAuthContexts(n int) {
	if m == nil {
		return
	}
	m.authContexts.Set(float64(n))
}
