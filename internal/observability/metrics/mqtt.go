package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics tracks the identification result publisher.
type MQTTMetrics struct {
	connected   prometheus.Gauge
	connectedAt prometheus.Gauge
	publishes   *prometheus.CounterVec
	payload     prometheus.Histogram
	latency     prometheus.Histogram
}

// NewMQTTMetrics creates and registers the MQTT collectors.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mqtt_connection_status",
			Help: "1 while connected to the broker",
		}),
		connectedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mqtt_last_connect_time_seconds",
			Help: "Timestamp of the last successful broker connection",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mqtt_publishes_total",
			Help: "Result messages published by outcome",
		}, []string{"result"}),
		payload: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mqtt_payload_bytes",
			Help:    "Size of published result messages",
			Buckets: prometheus.ExponentialBuckets(64, 2, 8),
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mqtt_publish_duration_seconds",
			Help:    "Time until the broker acknowledged a publish",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

// UpdateConnectionStatus sets the connection gauge.
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if !connected {
		m.connected.Set(0)
		return
	}
	m.connected.Set(1)
	m.connectedAt.SetToCurrentTime()
}

// ObservePublish records one publish attempt.
func (m *MQTTMetrics) ObservePublish(size int, elapsed time.Duration, err error) {
	if err != nil {
		m.publishes.WithLabelValues("error").Inc()
		return
	}
	m.publishes.WithLabelValues("ok").Inc()
	m.payload.Observe(float64(size))
	m.latency.Observe(elapsed.Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.connected.Desc()
	ch <- m.connectedAt.Desc()
	m.publishes.Describe(ch)
	ch <- m.payload.Desc()
	ch <- m.latency.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.connected
	ch <- m.connectedAt
	m.publishes.Collect(ch)
	ch <- m.payload
	ch <- m.latency
}
