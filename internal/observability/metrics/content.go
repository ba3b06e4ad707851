package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ContentMetrics tracks catalog mirroring and species lookups.
type ContentMetrics struct {
	syncObjects    *prometheus.CounterVec
	lastSync       prometheus.Gauge
	speciesLookups *prometheus.CounterVec
}

// NewContentMetrics creates and registers the content collectors.
func NewContentMetrics(registry *prometheus.Registry) (*ContentMetrics, error) {
	m := &ContentMetrics{
		syncObjects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_sync_objects_total",
			Help: "Objects handled by content syncs by result",
		}, []string{"result"}),
		lastSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "content_last_sync_time_seconds",
			Help: "Timestamp of the last completed content sync",
		}),
		speciesLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "species_info_lookups_total",
			Help: "Species information lookups by result",
		}, []string{"result"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register content metrics: %w", err)
	}
	return m, nil
}

// RecordSync records the per-object results of one sync.
func (m *ContentMetrics) RecordSync(downloaded, skipped, failed int) {
	m.syncObjects.WithLabelValues("downloaded").Add(float64(downloaded))
	m.syncObjects.WithLabelValues("skipped").Add(float64(skipped))
	m.syncObjects.WithLabelValues("failed").Add(float64(failed))
	m.lastSync.SetToCurrentTime()
}

// RecordSpeciesLookup records a lookup result: "found", "not_found" or "error".
func (m *ContentMetrics) RecordSpeciesLookup(result string) {
	m.speciesLookups.WithLabelValues(result).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *ContentMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.syncObjects.Describe(ch)
	ch <- m.lastSync.Desc()
	m.speciesLookups.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *ContentMetrics) Collect(ch chan<- prometheus.Metric) {
	m.syncObjects.Collect(ch)
	ch <- m.lastSync
	m.speciesLookups.Collect(ch)
}
