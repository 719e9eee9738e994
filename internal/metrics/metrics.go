// Package metrics defines the Prometheus collectors for ingestion and
// retrieval and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	DocumentsTotal      *prometheus.CounterVec
	ChunksStoredTotal   prometheus.Counter
	RetrievalsTotal     *prometheus.CounterVec
	RetrievalLatency    *prometheus.HistogramVec
	RetrievalResults    prometheus.Histogram
	ResolutionsTotal    *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocumentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courserag_documents_total",
				Help: "Documents processed by outcome (ingested, duplicate, malformed, empty, failed).",
			},
			[]string{"outcome"},
		),
		ChunksStoredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "courserag_chunks_stored_total",
				Help: "Total chunks written to the content index.",
			},
		),
		RetrievalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courserag_retrievals_total",
				Help: "Retrievals by outcome (ok, empty, course_not_found, timeout, error).",
			},
			[]string{"outcome"},
		),
		RetrievalLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "courserag_retrieval_latency_seconds",
				Help:    "Retrieval latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"filtered"},
		),
		RetrievalResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "courserag_retrieval_results",
				Help:    "Number of passages returned per retrieval.",
				Buckets: []float64{0, 1, 2, 3, 5, 10, 25},
			},
		),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courserag_course_resolutions_total",
				Help: "Course name resolutions by result (resolved, not_found).",
			},
			[]string{"result"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "courserag_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.DocumentsTotal,
		m.ChunksStoredTotal,
		m.RetrievalsTotal,
		m.RetrievalLatency,
		m.RetrievalResults,
		m.ResolutionsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// NewUnregistered returns collectors attached to a private registry, for
// callers that do not export metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// RegisterCacheStats exposes cumulative cache counters read from stats on
// each scrape.
func RegisterCacheStats(reg prometheus.Registerer, stats func() (hits, misses int64)) {
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "courserag_embedding_cache_hits_total",
			Help: "Total embedding cache hits.",
		}, func() float64 {
			h, _ := stats()
			return float64(h)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "courserag_embedding_cache_misses_total",
			Help: "Total embedding cache misses.",
		}, func() float64 {
			_, m := stats()
			return float64(m)
		}),
	)
}

// Handler returns the Prometheus scrape HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
