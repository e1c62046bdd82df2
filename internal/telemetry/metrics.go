// package telemetry exposes pulsemix counters to Prometheus.
//
// Every method is safe on a nil *Metrics so components can run without a registry.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pulsemix"

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	SamplesSynced     *prometheus.CounterVec
	SyncErrors        *prometheus.CounterVec
	SyncDuration      prometheus.Histogram
	Classifications   *prometheus.CounterVec
	Enrichments       *prometheus.CounterVec
	TokenRefreshes    *prometheus.CounterVec
	SearchCalls       *prometheus.CounterVec
	Resolutions       *prometheus.CounterVec
	ProvidersReported prometheus.Gauge
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SamplesSynced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_synced_total",
			Help:      "Wearable samples normalized and recorded, by provider",
		}, []string{"provider"}),

		SyncErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "Failed syncs by provider",
		}, []string{"provider"}),

		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Time from payload receipt to mood snapshot",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		}),

		Classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Mood snapshots produced, by label",
		}, []string{"label"}),

		Enrichments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichments_total",
			Help:      "Enrichment attempts by outcome",
		}, []string{"outcome"}), // outcome: "applied" or "failed"

		TokenRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by outcome",
		}, []string{"outcome"}),

		SearchCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_searches_total",
			Help:      "Catalog search calls by outcome",
		}, []string{"outcome"}),

		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Finished track resolutions by source",
		}, []string{"source"}),

		ProvidersReported: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "providers_reporting",
			Help:      "Providers contributing to the current aggregate",
		}),
	}
}

// ObserveSync records one successful sync.
func (m *Metrics) ObserveSync(provider string, providers int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SamplesSynced.WithLabelValues(provider).Inc()
	m.ProvidersReported.Set(float64(providers))
	m.SyncDuration.Observe(elapsed.Seconds())
}

// ObserveSyncError records a failed sync.
func (m *Metrics) ObserveSyncError(provider string) {
	if m == nil {
		return
	}
	m.SyncErrors.WithLabelValues(provider).Inc()
}

// ObserveClassification records a produced mood label.
func (m *Metrics) ObserveClassification(label string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(label).Inc()
}

// ObserveEnrichment records an enrichment outcome.
func (m *Metrics) ObserveEnrichment(outcome string) {
	if m == nil {
		return
	}
	m.Enrichments.WithLabelValues(outcome).Inc()
}

// ObserveRefresh records a token refresh outcome.
func (m *Metrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

// ObserveSearch records a catalog search outcome.
func (m *Metrics) ObserveSearch(outcome string) {
	if m == nil {
		return
	}
	m.SearchCalls.WithLabelValues(outcome).Inc()
}

// ObserveResolution records where a resolved track list came from.
func (m *Metrics) ObserveResolution(source string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(source).Inc()
}

// ResetAggregate zeroes the provider gauge after a reset.
func (m *Metrics) ResetAggregate() {
	if m == nil {
		return
	}
	m.ProvidersReported.Set(0)
}
