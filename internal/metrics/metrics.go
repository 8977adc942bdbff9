// Package metrics exposes Prometheus collectors for validation, search,
// resolver and sync activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the validator and the search coordinator.
const (
	OutcomeValid     = "valid"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
	OutcomePublished = "published"
	OutcomeStale     = "stale"
)

// Metrics groups the collectors of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	validations   *prometheus.CounterVec
	searches      *prometheus.CounterVec
	searchLatency prometheus.Histogram
	resolverCalls *prometheus.CounterVec
	syncJobs      *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relfield",
			Name:      "validations_total",
			Help:      "JQL validation passes by committed outcome.",
		}, []string{"outcome"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relfield",
			Name:      "searches_total",
			Help:      "Issue searches by outcome (published, stale, error).",
		}, []string{"outcome"}),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relfield",
			Name:      "search_duration_seconds",
			Help:      "Latency of remote issue searches.",
			Buckets:   prometheus.DefBuckets,
		}),
		resolverCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relfield",
			Name:      "resolver_calls_total",
			Help:      "Resolver invocations by function and success.",
		}, []string{"function", "success"}),
		syncJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relfield",
			Name:      "sync_jobs_total",
			Help:      "Sync jobs processed by type and result.",
		}, []string{"type", "result"}),
	}
	reg.MustRegister(m.validations, m.searches, m.searchLatency, m.resolverCalls, m.syncJobs)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveValidation(outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSearch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
	m.searchLatency.Observe(d.Seconds())
}

func (m *Metrics) ObserveResolverCall(function string, success bool) {
	if m == nil {
		return
	}
	s := "false"
	if success {
		s = "true"
	}
	m.resolverCalls.WithLabelValues(function, s).Inc()
}

func (m *Metrics) ObserveSyncJob(jobType, result string) {
	if m == nil {
		return
	}
	m.syncJobs.WithLabelValues(jobType, result).Inc()
}
