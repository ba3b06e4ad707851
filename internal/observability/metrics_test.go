package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdwatch-app/birdwatch-go/internal/httpclient"
	"github.com/birdwatch-app/birdwatch-go/internal/identify"
	"github.com/birdwatch-app/birdwatch-go/internal/observability/metrics"
)

func TestNewMetricsConcurrency(t *testing.T) {
	const numGoroutines = 20

	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			assert.NotNil(t, m.registry)
			assert.NotNil(t, m.Identify)
			assert.NotNil(t, m.HTTP)
			assert.NotNil(t, m.MQTT)
			assert.NotNil(t, m.Content)
		}()
	}
	wg.Wait()
}

func TestIdentifyMetricsObserveResults(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.Identify.Completed(ctx, identify.Identified{ScientificName: "Doliornis sclateri", AverageConfidence: 0.8}, nil)
	m.Identify.Completed(ctx, identify.FallbackIdentified{ScientificName: "Hapalopsittaca melanotis"}, nil)
	m.Identify.Completed(ctx, identify.FallbackIdentified{ScientificName: identify.SpeciesNotIdentified}, nil)
	m.Identify.Completed(ctx, identify.Failure{Kind: identify.FailureDetector}, nil)
	m.Identify.StageCompleted(identify.StagePrimary, 20*time.Millisecond, nil)
	m.Identify.StageCompleted(identify.StageFallback, time.Millisecond, errors.New("boom"))

	assert.InDelta(t, 1.0, m.Identify.Count(metrics.OutcomeIdentified), 1e-9)
	assert.InDelta(t, 1.0, m.Identify.Count(metrics.OutcomeFallback), 1e-9)
	assert.InDelta(t, 1.0, m.Identify.Count(metrics.OutcomeNotIdentified), 1e-9)
	assert.InDelta(t, 1.0, m.Identify.Count(metrics.OutcomeFailure), 1e-9)

	count, err := testutil.GatherAndCount(m.registry, "identify_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.HTTP.RecordRequest(http.MethodPost, "/analyze-bird", http.StatusOK, 50*time.Millisecond, 120)
	m.MQTT.UpdateConnectionStatus(true)
	m.Content.RecordSync(2, 1, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{method="POST",path="/analyze-bird",status_code="200"} 1`)
	assert.Contains(t, body, "mqtt_connection_status 1")
	assert.Contains(t, body, `content_sync_objects_total{result="downloaded"} 2`)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestInstrumentClient(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	client := httpclient.New(nil)
	httpmock.ActivateNonDefault(client.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodGet, "https://en.wikipedia.test/ok",
		httpmock.NewStringResponder(http.StatusOK, "{}"))

	m.InstrumentClient(client)
	_, err = client.GetBytes(t.Context(), "https://en.wikipedia.test/ok")
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(m.registry, "http_client_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
