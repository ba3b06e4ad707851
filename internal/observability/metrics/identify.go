package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/birdwatch-app/birdwatch-go/internal/identify"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// Identification outcomes used as label values.
const (
	OutcomeIdentified    = "identified"
	OutcomeFallback      = "fallback"
	OutcomeNotIdentified = "not_identified"
	OutcomeFailure       = "failure"
)

var _ identify.Observer = (*IdentifyMetrics)(nil)

// IdentifyMetrics counts identifications and times pipeline stages.
type IdentifyMetrics struct {
	identificationsTotal *prometheus.CounterVec
	failuresTotal        *prometheus.CounterVec
	stageDuration        *prometheus.HistogramVec
	confidence           prometheus.Histogram
}

// NewIdentifyMetrics creates and registers the identification collectors.
func NewIdentifyMetrics(registry *prometheus.Registry) (*IdentifyMetrics, error) {
	m := &IdentifyMetrics{
		identificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identify_requests_total",
			Help: "Total identification runs by outcome",
		}, []string{"outcome"}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identify_failures_total",
			Help: "Failed identification runs by failing stage",
		}, []string{"kind"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "identify_stage_duration_seconds",
			Help:    "Duration of identification pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"stage", "status"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "identify_primary_confidence",
			Help:    "Average confidence of species accepted from the primary detector",
			Buckets: prometheus.LinearBuckets(0.5, 0.05, 10),
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register identify metrics: %w", err)
	}
	return m, nil
}

// StageCompleted implements identify.Observer.
func (m *IdentifyMetrics) StageCompleted(stage string, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(elapsed.Seconds())
}

// Completed implements identify.Observer.
func (m *IdentifyMetrics) Completed(_ context.Context, res identify.Result, _ identify.Trace) {
	switch r := res.(type) {
	case identify.Identified:
		m.identificationsTotal.WithLabelValues(OutcomeIdentified).Inc()
		m.confidence.Observe(r.AverageConfidence)
	case identify.FallbackIdentified:
		if r.ScientificName == identify.SpeciesNotIdentified {
			m.identificationsTotal.WithLabelValues(OutcomeNotIdentified).Inc()
		} else {
			m.identificationsTotal.WithLabelValues(OutcomeFallback).Inc()
		}
	case identify.Failure:
		m.identificationsTotal.WithLabelValues(OutcomeFailure).Inc()
		m.failuresTotal.WithLabelValues(r.Kind.String()).Inc()
	}
}

// Count returns the number of runs that ended with outcome.
func (m *IdentifyMetrics) Count(outcome string) float64 {
	metric := &dto.Metric{}
	if err := m.identificationsTotal.WithLabelValues(outcome).Write(metric); err != nil {
		log.Warn("failed to read identification counter", logger.Error(err))
		return 0
	}
	if metric.Counter != nil && metric.Counter.Value != nil {
		return *metric.Counter.Value
	}
	return 0
}

// Describe implements the prometheus.Collector interface.
func (m *IdentifyMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.identificationsTotal.Describe(ch)
	m.failuresTotal.Describe(ch)
	m.stageDuration.Describe(ch)
	ch <- m.confidence.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *IdentifyMetrics) Collect(ch chan<- prometheus.Metric) {
	m.identificationsTotal.Collect(ch)
	m.failuresTotal.Collect(ch)
	m.stageDuration.Collect(ch)
	ch <- m.confidence
}
