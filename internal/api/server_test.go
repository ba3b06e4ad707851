package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/birdwatch-app/birdwatch-go/internal/buildinfo"
	"github.com/birdwatch-app/birdwatch-go/internal/catalog"
	"github.com/birdwatch-app/birdwatch-go/internal/conf"
	"github.com/birdwatch-app/birdwatch-go/internal/httpclient"
	"github.com/birdwatch-app/birdwatch-go/internal/identify"
	"github.com/birdwatch-app/birdwatch-go/internal/myaudio"
	"github.com/birdwatch-app/birdwatch-go/internal/testutil"
	"github.com/birdwatch-app/birdwatch-go/internal/observability"
	"github.com/birdwatch-app/birdwatch-go/internal/observability/metrics"
	"github.com/birdwatch-app/birdwatch-go/internal/speciesinfo"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

type stubDetector struct {
	detections []identify.Detection
	err        error
}

func (d *stubDetector) Detect(context.Context, string) ([]identify.Detection, error) {
	return d.detections, d.err
}

// stubExtractor yields one embedding whose first element is the class id.
type stubExtractor struct {
	class float32
}

func (e *stubExtractor) Embeddings(context.Context, string) ([][]float32, error) {
	return [][]float32{{e.class}}, nil
}

type firstElementClassifier struct{}

func (firstElementClassifier) Predict(vec []float32) (int, error) {
	return int(vec[0]), nil
}

// countingIdentifier records calls and returns a fixed result.
type countingIdentifier struct {
	mu    sync.Mutex
	calls int
	res   identify.Result
}

func (c *countingIdentifier) Identify(context.Context, []byte) (identify.Result, identify.Trace) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.res, identify.Trace{identify.StateStart}
}

func newPipeline(t *testing.T, det *stubDetector, fallbackClass float32, observer identify.Observer) *identify.Pipeline {
	t.Helper()
	return identify.NewPipeline(
		myaudio.NewNormalizer(conf.DefaultTargetDuration, ""),
		identify.NewPrimaryAdapter(det, identify.DefaultDiscardThreshold, t.TempDir()),
		identify.NewFallbackAdapter(&stubExtractor{class: fallbackClass}, firstElementClassifier{}, nil),
		identify.WithObserver(observer),
	)
}

func newTestServer(t *testing.T, identifier Identifier, opts ...ServerOption) *Server {
	t.Helper()
	s, err := New(&conf.Settings{}, identifier, opts...)
	require.NoError(t, err)
	return s
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze-bird", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestWelcome(t *testing.T) {
	s := newTestServer(t, &countingIdentifier{})
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to the Bird Watching App", decodeBody(t, rec)["message"])
}

func TestAnalyzeSilenceFallsBack(t *testing.T) {
	s := newTestServer(t, newPipeline(t, &stubDetector{}, 0, nil))

	rec := serve(s, uploadRequest(t, uploadField, "silence.wav", testutil.SilenceWAV(t, 2*time.Second, 16000)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, identify.SpeciesNotIdentified, body["scientific_name"])
	assert.Equal(t, identify.SourceFallback, body["source"])
	assert.NotContains(t, body, "average_confidence")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestAnalyzeFallbackKnownSpecies(t *testing.T) {
	s := newTestServer(t, newPipeline(t, &stubDetector{}, 2, nil))

	rec := serve(s, uploadRequest(t, uploadField, "clip.wav", testutil.SilenceWAV(t, 4*time.Second, 16000)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hapalopsittaca melanotis", decodeBody(t, rec)["scientific_name"])
}

func TestAnalyzeAcceptsPrimary(t *testing.T) {
	det := &stubDetector{detections: []identify.Detection{
		{ScientificName: "Turdus merula", Confidence: 0.9},
		{ScientificName: "Turdus merula", Confidence: 0.7},
	}}
	s := newTestServer(t, newPipeline(t, det, 1, nil))

	rec := serve(s, uploadRequest(t, uploadField, "clip.wav", testutil.SilenceWAV(t, 3*time.Second, 16000)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Turdus merula", body["scientific_name"])
	assert.InDelta(t, 0.8, body["average_confidence"], 1e-9)
	assert.Equal(t, identify.SourcePrimary, body["source"])
}

func TestAnalyzeInvalidAudio(t *testing.T) {
	s := newTestServer(t, newPipeline(t, &stubDetector{}, 0, nil))

	rec := serve(s, uploadRequest(t, uploadField, "notes.txt", []byte("invalid")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestAnalyzeMissingFileField(t *testing.T) {
	ident := &countingIdentifier{}
	s := newTestServer(t, ident)

	rec := serve(s, uploadRequest(t, "audio", "clip.wav", []byte("RIFF")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No audio file provided", decodeBody(t, rec)["error"])
	assert.Zero(t, ident.calls)
}

func TestAnalyzeDetectorFailureIs500(t *testing.T) {
	s := newTestServer(t, newPipeline(t, &stubDetector{err: assert.AnError}, 0, nil))

	rec := serve(s, uploadRequest(t, uploadField, "clip.wav", testutil.SilenceWAV(t, time.Second, 16000)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "BirdNET analysis failed")
}

func TestAnalyzeUploadTooLarge(t *testing.T) {
	ident := &countingIdentifier{}
	cfg := DefaultConfig()
	cfg.MaxUpload = "1KB"
	s := newTestServer(t, ident, WithConfig(cfg))

	rec := serve(s, uploadRequest(t, uploadField, "clip.wav", make([]byte, 4096)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, ident.calls)
}

func TestAnalyzeRateLimited(t *testing.T) {
	ident := &countingIdentifier{res: identify.FallbackIdentified{ScientificName: identify.SpeciesNotIdentified}}
	cfg := DefaultConfig()
	cfg.RateLimit = 0.001
	cfg.Burst = 1
	s := newTestServer(t, ident, WithConfig(cfg))

	first := serve(s, uploadRequest(t, uploadField, "a.wav", []byte("x")))
	second := serve(s, uploadRequest(t, uploadField, "b.wav", []byte("x")))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, 1, ident.calls)
}

func TestFailureStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, failureStatus(identify.FailureDecode))
	assert.Equal(t, http.StatusInternalServerError, failureStatus(identify.FailureDetector))
	assert.Equal(t, http.StatusInternalServerError, failureStatus(identify.FailureFallback))
}

func TestHealthAndMetrics(t *testing.T) {
	m, err := observability.NewMetrics()
	require.NoError(t, err)

	pipeline := newPipeline(t, &stubDetector{}, 1, m.Identify)
	s := newTestServer(t, pipeline,
		WithMetrics(m),
		WithBuildInfo(&buildinfo.Context{Version: "1.4.0", BuildDate: "2026-10-01"}))

	rec := serve(s, uploadRequest(t, uploadField, "clip.wav", testutil.SilenceWAV(t, 3*time.Second, 16000)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.4.0", body["version"])
	assert.Equal(t, "2026-10-01", body["build_date"])
	counts, ok := body["identifications"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 1.0, counts[metrics.OutcomeFallback], 1e-9)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `identify_requests_total{outcome="fallback"} 1`)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="POST",path="/analyze-bird",status_code="200"} 1`)
}

func TestMetricsRouteAbsentWithoutMetrics(t *testing.T) {
	s := newTestServer(t, &countingIdentifier{})
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", decodeBody(t, rec)["error"])
}

func newCatalogStore(t *testing.T) *catalog.Store {
	t.Helper()
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	write("bird_sounds/a.json", `{"title":"older","dts":10}`)
	write("bird_sounds/b.json", `{"title":"newer","dts":20}`)
	write("bird_sounds/assets/b-EN.mp3", "ID3audio")
	write("bird_maps/m.json", `{"title":"map","dts":5}`)
	write("bird_maps/assets/mapbirddef.jpg", "\xff\xd8\xff")
	return catalog.NewStore(root, 0)
}

func TestCatalogRoutes(t *testing.T) {
	s := newTestServer(t, &countingIdentifier{}, WithCatalog(newCatalogStore(t)))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/bird_sounds/?limit=1", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "newer", list[0]["title"])

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/bird_sounds/a", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "older", decodeBody(t, rec)["title"])

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/bird_sounds/missing", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Bird sound not found", decodeBody(t, rec)["error"])

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/bird_sounds/audio/b-EN.mp3", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "ID3audio", rec.Body.String())

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/bird_sounds/audio/nope.mp3", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/bird_maps", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/bird_maps/image/mapbirddef.jpg", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/bird_maps/image/..%2Fm.json", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/bird_sounds/?limit=abc", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpeciesRoute(t *testing.T) {
	const base = "https://wiki.test/api/rest_v1"
	hc := httpclient.New(nil)
	httpmock.ActivateNonDefault(hc.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodGet, base+"/page/summary/Doliornis_sclateri",
		httpmock.NewStringResponder(http.StatusOK,
			`{"type":"standard","title":"Bay-vented cotinga","extract":"A cotinga."}`))
	httpmock.RegisterResponder(http.MethodGet, base+"/page/summary/Nullus_avis",
		httpmock.NewStringResponder(http.StatusNotFound, `{}`))
	httpmock.RegisterResponder(http.MethodGet, base+"/page/summary/Fragilis_avis",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, `{}`))

	provider := speciesinfo.NewProvider(&conf.SpeciesInfoSettings{
		BaseURL: base, RateLimit: 1000, CacheTTL: time.Minute,
	}, hc)
	s := newTestServer(t, &countingIdentifier{}, WithSpeciesInfo(provider))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/species/Doliornis_sclateri", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Bay-vented cotinga", decodeBody(t, rec)["title"])

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/species/Nullus_avis", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/species/Fragilis_avis", http.NoBody))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/species/x1%3B", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(20*1024*1024), cfg.MaxUploadBytes())
	assert.Equal(t, ":8000", cfg.Address())

	cfg.MaxUpload = "lots"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Port = ""
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.RateLimit = -1
	require.Error(t, cfg.Validate())
}

func TestNewRequiresIdentifier(t *testing.T) {
	_, err := New(&conf.Settings{}, nil)
	require.Error(t, err)
}
