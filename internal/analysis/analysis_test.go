package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdwatch-app/birdwatch-go/internal/classifier"
	"github.com/birdwatch-app/birdwatch-go/internal/conf"
	"github.com/birdwatch-app/birdwatch-go/internal/httpclient"
	"github.com/birdwatch-app/birdwatch-go/internal/identify"
	"github.com/birdwatch-app/birdwatch-go/internal/testutil"
)

const remoteURL = "http://detector.test"

// writeClassifier stores a one-input model that picks class 2 for positive input.
func writeClassifier(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(&classifier.MLP{
		Classes:          []int{1, 2},
		HiddenActivation: classifier.ActivationReLU,
		OutputActivation: classifier.ActivationSoftmax,
		Layers: []classifier.Layer{
			{Weights: [][]float64{{-5, 5}}, Biases: []float64{0, 0}},
		},
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "mlp.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func remoteSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.Audio.TargetDuration = conf.DefaultTargetDuration
	s.Audio.TempDir = t.TempDir()
	s.Detector.Backend = conf.DetectorBackendRemote
	s.Detector.RemoteURL = remoteURL
	s.Identification.DiscardThreshold = conf.DefaultDiscardThreshold
	s.Identification.AcceptThreshold = conf.DefaultAcceptThreshold
	s.Classifier.ModelPath = writeClassifier(t)
	return s
}

func mockClient(t *testing.T) *httpclient.Client {
	t.Helper()
	hc := httpclient.New(nil)
	httpmock.ActivateNonDefault(hc.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return hc
}

func TestBuildPipelineRemoteFallback(t *testing.T) {
	hc := mockClient(t)
	httpmock.RegisterResponder(http.MethodPost, remoteURL+"/analyze",
		httpmock.NewStringResponder(http.StatusOK, `{"detections":[{"scientific_name":"Turdus merula","confidence":0.3}]}`))
	httpmock.RegisterResponder(http.MethodPost, remoteURL+"/embeddings",
		httpmock.NewStringResponder(http.StatusOK, `{"embeddings":[[1.0]]}`))

	c, err := BuildPipeline(remoteSettings(t), WithHTTPClient(hc))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	assert.Equal(t, conf.DetectorBackendRemote, c.Backend)

	res, _ := c.Pipeline.Identify(t.Context(), testutil.SilenceWAV(t, 3*time.Second, 48000))
	assert.Equal(t, identify.FallbackIdentified{ScientificName: "Hapalopsittaca melanotis"}, res)
}

func TestBuildPipelineRemoteAccepted(t *testing.T) {
	hc := mockClient(t)
	httpmock.RegisterResponder(http.MethodPost, remoteURL+"/analyze",
		httpmock.NewStringResponder(http.StatusOK, `{"detections":[
			{"scientific_name":"Turdus merula","confidence":0.9},
			{"scientific_name":"Turdus merula","confidence":0.8}]}`))

	c, err := BuildPipeline(remoteSettings(t), WithHTTPClient(hc))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	res, _ := c.Pipeline.Identify(t.Context(), testutil.SilenceWAV(t, 3*time.Second, 48000))
	assert.Equal(t, identify.Identified{ScientificName: "Turdus merula", AverageConfidence: 0.85}, res)
	assert.Equal(t, 0, httpmock.GetCallCountInfo()["POST "+remoteURL+"/embeddings"])
}

func TestBuildPipelineErrors(t *testing.T) {
	s := remoteSettings(t)
	s.Detector.Backend = "quantum"
	_, err := BuildPipeline(s)
	require.Error(t, err)

	s = remoteSettings(t)
	s.Classifier.ModelPath = filepath.Join(t.TempDir(), "missing.json")
	_, err = BuildPipeline(s, WithHTTPClient(httpclient.New(nil)))
	require.Error(t, err)

	s = remoteSettings(t)
	s.Classifier.Labels = map[string]string{"one": "Doliornis sclateri"}
	_, err = BuildPipeline(s, WithHTTPClient(httpclient.New(nil)))
	require.Error(t, err)
}

func TestClassifierLabels(t *testing.T) {
	s := &conf.Settings{}
	labels, err := classifierLabels(s)
	require.NoError(t, err)
	assert.Equal(t, identify.DefaultLabels(), labels)

	s.Classifier.Labels = map[string]string{"7": "Grallaria ridgelyi"}
	labels, err = classifierLabels(s)
	require.NoError(t, err)
	assert.Equal(t, identify.LabelMap{7: "Grallaria ridgelyi"}, labels)
}

type fixedIdentifier struct {
	res identify.Result
}

func (f fixedIdentifier) Identify(context.Context, []byte) (identify.Result, identify.Trace) {
	return f.res, identify.Trace{identify.StateStart}
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o600))
	return path
}

func TestFileAnalysisTable(t *testing.T) {
	var out bytes.Buffer
	ident := fixedIdentifier{res: identify.Identified{ScientificName: "Turdus merula", AverageConfidence: 0.912}}

	require.NoError(t, FileAnalysis(t.Context(), ident, writeAudio(t), FormatTable, &out))
	assert.Contains(t, out.String(), "clip.wav")
	assert.Contains(t, out.String(), "Turdus merula")
	assert.Contains(t, out.String(), "0.912")
	assert.Contains(t, out.String(), identify.SourcePrimary)
}

func TestFileAnalysisJSON(t *testing.T) {
	var out bytes.Buffer
	ident := fixedIdentifier{res: identify.FallbackIdentified{ScientificName: identify.SpeciesNotIdentified}}

	require.NoError(t, FileAnalysis(t.Context(), ident, writeAudio(t), FormatJSON, &out))
	var body map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Equal(t, identify.SpeciesNotIdentified, body["scientific_name"])
	assert.Equal(t, identify.SourceFallback, body["source"])
}

func TestFileAnalysisFailure(t *testing.T) {
	var out bytes.Buffer
	ident := fixedIdentifier{res: identify.Failure{Kind: identify.FailureDecode, Message: "Failed to process audio", Details: "bad header"}}

	err := FileAnalysis(t.Context(), ident, writeAudio(t), FormatTable, &out)
	require.Error(t, err)
	assert.Contains(t, out.String(), "bad header")
}

func TestFileAnalysisValidation(t *testing.T) {
	ident := fixedIdentifier{}
	var out bytes.Buffer

	require.Error(t, FileAnalysis(t.Context(), ident, filepath.Join(t.TempDir(), "none.wav"), FormatTable, &out))
	require.Error(t, FileAnalysis(t.Context(), ident, t.TempDir(), FormatTable, &out))

	empty := filepath.Join(t.TempDir(), "empty.wav")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	require.Error(t, FileAnalysis(t.Context(), ident, empty, FormatTable, &out))

	require.Error(t, FileAnalysis(t.Context(), ident, writeAudio(t), "yaml", &out))
	assert.Empty(t, out.String())
}

type recordedSync struct {
	downloaded, skipped, failed int
}

func (r *recordedSync) RecordSync(downloaded, skipped, failed int) {
	r.downloaded, r.skipped, r.failed = downloaded, skipped, failed
}

func TestSyncContentHTTP(t *testing.T) {
	const bucket = "https://bucket.test/birdwatching_app"
	hc := mockClient(t)
	httpmock.RegisterResponder(http.MethodGet, bucket+"/bird_sounds/a.json",
		httpmock.NewStringResponder(http.StatusOK, `{"dts":1}`))
	httpmock.RegisterResponder(http.MethodGet, bucket+"/bird_maps/assets/map.jpg",
		httpmock.NewStringResponder(http.StatusNotFound, ""))

	s := &conf.Settings{}
	s.Content.Backend = conf.ContentBackendHTTP
	s.Content.BucketURL = bucket
	s.Content.DataDir = t.TempDir()
	s.Content.Files = []string{"bird_sounds/a.json", "bird_maps/assets/map.jpg"}

	rec := &recordedSync{}
	report, err := SyncContent(t.Context(), s, hc, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"bird_sounds/a.json"}, report.Downloaded)
	assert.Equal(t, []string{"bird_maps/assets/map.jpg"}, report.Failed)
	assert.Equal(t, recordedSync{downloaded: 1, failed: 1}, *rec)

	data, err := os.ReadFile(filepath.Join(s.Content.DataDir, "bird_sounds", "a.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"dts":1}`, string(data))
}

func TestNewFetcherUnknownBackend(t *testing.T) {
	s := &conf.Settings{}
	s.Content.Backend = "ftp"
	_, err := NewFetcher(t.Context(), s, httpclient.New(nil))
	require.Error(t, err)
}
