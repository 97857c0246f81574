package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "governance"

// LatencyBuckets are histogram buckets for provider and query latency, in seconds.
var LatencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60}

// Metrics holds the engine's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	admission        *prometheus.CounterVec
	backendFailures  *prometheus.CounterVec
	budgetDenials    *prometheus.CounterVec
	providerAttempts *prometheus.CounterVec
	providerSkips    *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	retryBackoff     prometheus.Histogram
	routingOutcomes  *prometheus.CounterVec
	estimatedCost    *prometheus.CounterVec
	queryDuration    *prometheus.HistogramVec
}

// NewMetrics registers all collectors, plus Go and process collectors, on a new registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "status_code"}),
		admission: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Rate limiter decisions by backing store",
		}, []string{"backend", "decision"}),
		backendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_failures_total",
			Help:      "Failures of shared stores and collaborators",
		}, []string{"component", "backend"}),
		budgetDenials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_denials_total",
			Help:      "Queries denied by the token window or the cost ledger",
		}, []string{"kind"}),
		providerAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Provider invocations by outcome",
		}, []string{"provider", "outcome"}),
		providerSkips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_skips_total",
			Help:      "Providers skipped because the estimate exceeded their ceiling",
		}, []string{"provider"}),
		providerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Latency of single provider invocations",
			Buckets:   LatencyBuckets,
		}, []string{"provider"}),
		retryBackoff: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retry_backoff_seconds",
			Help:      "Backoff slept between provider attempts",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		routingOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_outcomes_total",
			Help:      "Router results by provider, provider=none on exhaustion",
		}, []string{"provider", "outcome"}),
		estimatedCost: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimated_cost_usd_total",
			Help:      "Estimated USD cost billed to tenants, by provider",
		}, []string{"provider"}),
		queryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end orchestrated query latency",
			Buckets:   LatencyBuckets,
		}, []string{"outcome"}),
	}
}

// ObserveHTTP counts one HTTP response
func (m *Metrics) ObserveHTTP(route, statusCode string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, statusCode).Inc()
}

// ObserveAdmission counts one rate limiter decision
func (m *Metrics) ObserveAdmission(backend string, allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.admission.WithLabelValues(backend, decision).Inc()
}

// ObserveBackendFailure counts a failed call to a store or collaborator
func (m *Metrics) ObserveBackendFailure(component, backend string) {
	if m == nil {
		return
	}
	m.backendFailures.WithLabelValues(component, backend).Inc()
}

// ObserveBudgetDenial counts a token ("token") or cost ("cost") denial
func (m *Metrics) ObserveBudgetDenial(kind string) {
	if m == nil {
		return
	}
	m.budgetDenials.WithLabelValues(kind).Inc()
}

// ObserveProviderAttempt records one provider call and its latency
func (m *Metrics) ObserveProviderAttempt(provider, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.providerAttempts.WithLabelValues(provider, outcome).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(took.Seconds())
}

// ObserveProviderSkip counts a provider skipped on cost grounds
func (m *Metrics) ObserveProviderSkip(provider string) {
	if m == nil {
		return
	}
	m.providerSkips.WithLabelValues(provider).Inc()
}

// ObserveBackoff records one retry sleep
func (m *Metrics) ObserveBackoff(d time.Duration) {
	if m == nil {
		return
	}
	m.retryBackoff.Observe(d.Seconds())
}

// ObserveRouting records the router's final result
func (m *Metrics) ObserveRouting(provider, outcome string, cost float64) {
	if m == nil {
		return
	}
	m.routingOutcomes.WithLabelValues(provider, outcome).Inc()
	if cost > 0 {
		m.estimatedCost.WithLabelValues(provider).Add(cost)
	}
}

// ObserveQuery records an orchestrated query's duration
func (m *Metrics) ObserveQuery(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(outcome).Observe(took.Seconds())
}
