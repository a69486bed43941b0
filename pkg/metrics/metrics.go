// Package metrics defines the Prometheus metric collectors used by the
// signal stream and its collaborators, and exposes an HTTP handler for
// scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	PublishTotal        *prometheus.CounterVec
	PublishLatency      prometheus.Histogram
	DeliveredTotal      prometheus.Counter
	EmptyPollsTotal     prometheus.Counter
	MalformedTotal      prometheus.Counter
	BatchSize           prometheus.Histogram
	SourcesTotal        *prometheus.CounterVec
	EnrichmentsTotal    *prometheus.CounterVec
	EnrichmentLatency   prometheus.Histogram
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg uses
// the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_publish_total",
				Help: "Publish attempts by outcome (published, duplicate, unavailable, error).",
			},
			[]string{"outcome"},
		),
		PublishLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signal_publish_latency_seconds",
				Help:    "Latency of a full publish sequence in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			},
		),
		DeliveredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "signal_delivered_total",
				Help: "Stream entries handed to the consumer callback.",
			},
		),
		EmptyPollsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "signal_empty_polls_total",
				Help: "Consumer group reads that returned no entries.",
			},
		),
		MalformedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "signal_malformed_entries_total",
				Help: "Stream entries skipped because they could not be decoded.",
			},
		),
		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signal_read_batch_size",
				Help:    "Number of entries returned per consumer group read.",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
			},
		),
		SourcesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweep_sources_total",
				Help: "Feed sources handled by type and status.",
			},
			[]string{"type", "status"},
		),
		EnrichmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_enrichments_total",
				Help: "Reputation lookups by status.",
			},
			[]string{"status"},
		),
		EnrichmentLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "forge_enrichment_latency_seconds",
				Help:    "Reputation lookup latency in seconds.",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.PublishTotal,
		m.PublishLatency,
		m.DeliveredTotal,
		m.EmptyPollsTotal,
		m.MalformedTotal,
		m.BatchSize,
		m.SourcesTotal,
		m.EnrichmentsTotal,
		m.EnrichmentLatency,
		m.CircuitBreakerState,
	)

	return m
}

// ObservePublish records the outcome and latency of one publish.
func (m *Metrics) ObservePublish(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.PublishTotal.WithLabelValues(outcome).Inc()
	m.PublishLatency.Observe(seconds)
}

// ObserveBatch records one consumer read of n entries.
func (m *Metrics) ObserveBatch(n int) {
	if m == nil {
		return
	}
	if n == 0 {
		m.EmptyPollsTotal.Inc()
		return
	}
	m.BatchSize.Observe(float64(n))
}

// IncDelivered counts one entry handed to the callback.
func (m *Metrics) IncDelivered() {
	if m == nil {
		return
	}
	m.DeliveredTotal.Inc()
}

// IncMalformed counts one undecodable entry.
func (m *Metrics) IncMalformed() {
	if m == nil {
		return
	}
	m.MalformedTotal.Inc()
}

// IncSource counts one handled feed source.
func (m *Metrics) IncSource(sourceType, status string) {
	if m == nil {
		return
	}
	m.SourcesTotal.WithLabelValues(sourceType, status).Inc()
}

// ObserveEnrichment records one reputation lookup.
func (m *Metrics) ObserveEnrichment(status string, seconds float64) {
	if m == nil {
		return
	}
	m.EnrichmentsTotal.WithLabelValues(status).Inc()
	m.EnrichmentLatency.Observe(seconds)
}

// SetBreakerState exports a circuit breaker state as a gauge value.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
