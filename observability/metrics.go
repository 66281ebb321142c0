package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the visual risk pipeline.
type Metrics struct {
	ProviderRequests *prometheus.CounterVec // labels: provider, outcome={success,network_error,auth_error,decode_error}
	ProviderDuration *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec // labels: result={hit,miss}

	AssessmentsTotal  *prometheus.CounterVec // labels: outcome={ok,partial,error}
	AssessmentSeconds prometheus.Histogram
	MosaicTiles       *prometheus.CounterVec // labels: outcome={ok,placeholder}
	BatchItems        *prometheus.CounterVec // labels: outcome={ok,error}
}

func newMetrics() *Metrics {
	return &Metrics{
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskmap_vision",
			Name:      "provider_requests_total",
			Help:      "Imagery provider requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "riskmap_vision",
			Name:      "provider_request_duration_seconds",
			Help:      "Imagery provider request duration.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskmap_vision",
			Name:      "image_cache_lookups_total",
			Help:      "Disk cache lookups by result.",
		}, []string{"result"}),
		AssessmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskmap_vision",
			Name:      "assessments_total",
			Help:      "Completed risk assessments by outcome.",
		}, []string{"outcome"}),
		AssessmentSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "riskmap_vision",
			Name:      "assessment_duration_seconds",
			Help:      "Duration of one full acquire-detect-score run.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		MosaicTiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskmap_vision",
			Name:      "mosaic_tiles_total",
			Help:      "Mosaic tiles assembled, by outcome.",
		}, []string{"outcome"}),
		BatchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskmap_vision",
			Name:      "batch_items_total",
			Help:      "Items processed by the batch runner, by outcome.",
		}, []string{"outcome"}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ProviderRequests,
		m.ProviderDuration,
		m.CacheLookups,
		m.AssessmentsTotal,
		m.AssessmentSeconds,
		m.MosaicTiles,
		m.BatchItems,
	)
	return m
}

// NewMetricsForTesting creates Metrics without touching the default registry so
// parallel tests do not trip "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
