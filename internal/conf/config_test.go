package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	settings, err := Load(writeConfig(t, "debug: false\n"))
	require.NoError(t, err)

	assert.InDelta(t, 0.1, settings.Identification.DiscardThreshold, 1e-9)
	assert.InDelta(t, 0.5, settings.Identification.AcceptThreshold, 1e-9)
	assert.Equal(t, 3*time.Second, settings.Audio.TargetDuration)
	assert.Equal(t, "8000", settings.WebServer.Port)
	assert.Equal(t, DetectorBackendLocal, settings.Detector.Backend)

	labels, err := settings.ClassifierLabels()
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "Doliornis sclateri", 2: "Hapalopsittaca melanotis"}, labels)
	assert.Same(t, settings, GetSettings())
}

func TestLoadOverridesFromFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := writeConfig(t, `
webserver:
  port: "9090"
  maxupload: 5M
audio:
  targetduration: 2500ms
identification:
  acceptthreshold: 0.7
detector:
  backend: remote
  remoteurl: http://detector:8080
classifier:
  labels:
    3: Grallaria ruficapilla
`)
	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", settings.WebServer.Port)
	assert.Equal(t, 2500*time.Millisecond, settings.Audio.TargetDuration)
	assert.InDelta(t, 0.7, settings.Identification.AcceptThreshold, 1e-9)
	assert.Equal(t, DetectorBackendRemote, settings.Detector.Backend)

	labels, err := settings.ClassifierLabels()
	require.NoError(t, err)
	assert.Equal(t, "Grallaria ruficapilla", labels[3])
}

func TestLoadEnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("BIRDWATCH_ACCEPT_THRESHOLD", "0.65")
	t.Setenv("BIRDWATCH_PORT", "8181")

	settings, err := Load(writeConfig(t, "debug: true\n"))
	require.NoError(t, err)

	assert.InDelta(t, 0.65, settings.Identification.AcceptThreshold, 1e-9)
	assert.Equal(t, "8181", settings.WebServer.Port)
	assert.Equal(t, "debug", settings.LoggerConfig().Level)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := Load(writeConfig(t, `
identification:
  discardthreshold: 1.5
detector:
  backend: cloud
`))
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
}

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fn      func(string) error
		value   string
		wantErr bool
	}{
		{"threshold ok", validateEnvThreshold, "0.5", false},
		{"threshold high", validateEnvThreshold, "1.2", true},
		{"port ok", validateEnvPort, "8000", false},
		{"port zero", validateEnvPort, "0", true},
		{"byte size", validateEnvByteSize, "20M", false},
		{"byte size bad", validateEnvByteSize, "twenty", true},
		{"duration", validateEnvDuration, "3s", false},
		{"duration negative", validateEnvDuration, "-1s", true},
		{"backend", validateEnvBackend, "remote", false},
		{"backend bad", validateEnvBackend, "cloud", true},
		{"url", validateEnvURL, "tcp://broker:1883", false},
		{"url no host", validateEnvURL, "broker", true},
		{"log level", validateEnvLogLevel, "TRACE", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.fn(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClassifierLabelsRejectsNonIntegerKeys(t *testing.T) {
	t.Parallel()

	s := &Settings{}
	s.Classifier.Labels = map[string]string{"one": "Doliornis sclateri"}
	_, err := s.ClassifierLabels()
	assert.Error(t, err)
}
