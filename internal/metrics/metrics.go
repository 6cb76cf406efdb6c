// Package metrics exports retrieval, ingest and LLM metrics in Prometheus format.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stylematch"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	upserts      *prometheus.CounterVec
	ingestRuns   *prometheus.CounterVec
	queries      *prometheus.CounterVec
	queryLatency *prometheus.HistogramVec
	llmRequests  *prometheus.CounterVec
	llmLatency   *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	buckets := []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "upserts_total",
			Help:      "Inventory upserts by outcome (inserted, skipped, error).",
		}, []string{"outcome"}),
		ingestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "ingest_runs_total",
			Help:      "Ingest runs by status.",
		}, []string{"status"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "queries_total",
			Help:      "Hybrid queries by mode and status.",
		}, []string{"mode", "status"}),
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "query_latency_seconds",
			Help:      "Hybrid query latency in seconds.",
			Buckets:   buckets,
		}, []string{"mode"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Language model calls by operation and status.",
		}, []string{"operation", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "Language model call latency in seconds.",
			Buckets:   buckets,
		}, []string{"operation"}),
	}
	m.registry.MustRegister(m.upserts, m.ingestRuns, m.queries, m.queryLatency, m.llmRequests, m.llmLatency)
	return m
}

// Registry returns the underlying registry.
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
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveUpsert counts one upsert outcome.
func (m *Metrics) ObserveUpsert(outcome string) {
	if m == nil {
		return
	}
	m.upserts.WithLabelValues(outcome).Inc()
}

// ObserveIngest counts one ingest run.
func (m *Metrics) ObserveIngest(err error) {
	if m == nil {
		return
	}
	m.ingestRuns.WithLabelValues(status(err)).Inc()
}

// ObserveQuery records a query with its latency.
func (m *Metrics) ObserveQuery(mode string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(mode, status(err)).Inc()
	m.queryLatency.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveLLM records a language model call with its latency.
func (m *Metrics) ObserveLLM(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(operation, status(err)).Inc()
	m.llmLatency.WithLabelValues(operation).Observe(d.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
