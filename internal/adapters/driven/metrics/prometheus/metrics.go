// Package prometheus exposes pipeline and search instrumentation as
// Prometheus metrics.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
)

// Ensure Metrics implements the interface.
var _ driven.Metrics = (*Metrics)(nil)

const namespace = "ephemera"

// Metrics records measurements into its own registry.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration  *prometheus.HistogramVec
	ingestTotal    *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
	searchTotal    *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	searchResults  *prometheus.HistogramVec
	expiredTotal   prometheus.Counter
}

// New creates a Metrics with a private registry. Go runtime and process
// collectors are registered alongside the pipeline metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "stage_duration_seconds",
				Help:      "Ingestion stage duration in seconds",
				Buckets:   []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage", "outcome"},
		),

		ingestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "documents_total",
				Help:      "Total number of ingested documents by final status",
			},
			[]string{"status"},
		),

		ingestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "duration_seconds",
				Help:      "Whole ingestion duration in seconds",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),

		searchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "requests_total",
				Help:      "Total number of searches by probe mode",
			},
			[]string{"mode"},
		),

		searchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "duration_seconds",
				Help:      "Search duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"mode"},
		),

		searchResults: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "results",
				Help:      "Number of results returned per search",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
			},
			[]string{"mode"},
		),

		expiredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retention",
				Name:      "documents_expired_total",
				Help:      "Total number of documents removed by the expiry sweep",
			},
		),
	}
}

// StageFinished records one ingestion stage.
func (m *Metrics) StageFinished(stage domain.Stage, outcome domain.StageOutcome, d time.Duration) {
	m.stageDuration.WithLabelValues(string(stage), string(outcome)).Observe(d.Seconds())
}

// IngestFinished records a whole ingestion by its final status.
func (m *Metrics) IngestFinished(status domain.DocumentStatus, d time.Duration) {
	m.ingestTotal.WithLabelValues(string(status)).Inc()
	m.ingestDuration.WithLabelValues(string(status)).Observe(d.Seconds())
}

// SearchFinished records a search by mode and result count.
func (m *Metrics) SearchFinished(mode domain.SearchMode, results int, d time.Duration) {
	m.searchTotal.WithLabelValues(string(mode)).Inc()
	m.searchDuration.WithLabelValues(string(mode)).Observe(d.Seconds())
	m.searchResults.WithLabelValues(string(mode)).Observe(float64(results))
}

// DocumentsExpired records documents removed by the TTL sweep.
func (m *Metrics) DocumentsExpired(n int) {
	if n <= 0 {
		return
	}
	m.expiredTotal.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
