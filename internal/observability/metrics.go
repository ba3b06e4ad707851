package observability

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/birdwatch-app/birdwatch-go/internal/httpclient"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
	"github.com/birdwatch-app/birdwatch-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Identify *metrics.IdentifyMetrics
	HTTP     *metrics.HTTPMetrics
	MQTT     *metrics.MQTTMetrics
	Content  *metrics.ContentMetrics
}

// NewMetrics creates a registry with all collectors plus the Go runtime and
// process collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	identifyMetrics, err := metrics.NewIdentifyMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create identify metrics: %w", err)
	}
	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}
	contentMetrics, err := metrics.NewContentMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create content metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Identify: identifyMetrics,
		HTTP:     httpMetrics,
		MQTT:     mqttMetrics,
		Content:  contentMetrics,
	}, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promLogger{},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// InstrumentClient records outbound calls of c.
func (m *Metrics) InstrumentClient(c *httpclient.Client) {
	c.SetAfterResponseHook(func(req *http.Request, resp *http.Response, err error, elapsed time.Duration) {
		status := 0
		if err == nil && resp != nil {
			status = resp.StatusCode
		}
		m.HTTP.RecordOutbound(hostOf(req.URL), status, elapsed)
	})
}

func hostOf(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Host
}

// promLogger adapts the module logger to promhttp.Logger.
type promLogger struct{}

func (promLogger) Println(v ...any) {
	log.Error("metrics handler error", logger.String("message", fmt.Sprint(v...)))
}
