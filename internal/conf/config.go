// config.go: settings struct for birdwatch and functions to load it.
package conf

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// LogSettings mirrors logger.Config so it can be unmarshalled by viper.
type LogSettings struct {
	Level        string            // trace, debug, info, warn, error
	Timezone     string            // "Local", "UTC" or IANA name
	Console      bool              // text output on stdout
	File         string            // JSON log file, empty disables
	ModuleLevels map[string]string // per-module level overrides
}

// WebServerSettings contains settings for the HTTP boundary.
type WebServerSettings struct {
	Port      string  // listen port
	MaxUpload string  // upload limit as a byte size string, e.g. "20M"
	RateLimit float64 // analyze requests per second, 0 disables
	Burst     int     // rate limiter burst
	Debug     bool    // verbose request logging
}

// AudioSettings contains settings for the audio normalizer.
type AudioSettings struct {
	TargetDuration time.Duration // duration every clip is padded or truncated to
	FfmpegPath     string        // path to ffmpeg, empty to look it up on PATH
	TempDir        string        // directory for per-request scratch files
}

// DetectorSettings configures the primary acoustic detector.
type DetectorSettings struct {
	Backend            string        // "local" (tflite) or "remote"
	ModelPath          string        // analysis model
	LabelPath          string        // labels, one Scientific_Common per line
	EmbeddingModelPath string        // embedding model for the fallback path
	Sensitivity        float64       // sigmoid sensitivity
	Threads            int           // interpreter threads, 0 = auto
	MinConfidence      float64       // per-segment pre-filter applied by the detector
	Overlap            float64       // segment overlap in seconds
	RemoteURL          string        // base URL of the remote detector service
	Timeout            time.Duration // remote request timeout
}

// IdentificationSettings holds the decision policy thresholds.
type IdentificationSettings struct {
	DiscardThreshold float64 // detections below this are dropped before aggregation
	AcceptThreshold  float64 // primary result accepted when its mean is above this
}

// ClassifierSettings configures the fallback classifier.
type ClassifierSettings struct {
	ModelPath string            // serialized MLP
	LabelPath string            // optional YAML label table, overrides Labels
	Labels    map[string]string // class id -> scientific name
}

// ContentSettings configures the bird sounds and bird maps catalog.
type ContentSettings struct {
	DataDir   string        // local mirror root
	Backend   string        // "http" or "gcs"
	BucketURL string        // public bucket base URL for the http backend
	Bucket    string        // bucket name for the gcs backend
	Files     []string      // object names to mirror, relative to the bucket root
	CacheTTL  time.Duration // listing cache lifetime
}

// SpeciesInfoSettings configures Wikipedia species summaries.
type SpeciesInfoSettings struct {
	Enabled   bool
	BaseURL   string        // REST API base, e.g. https://en.wikipedia.org/api/rest_v1
	RateLimit float64       // requests per second towards the provider
	CacheTTL  time.Duration // cache lifetime for found and not-found entries
	Timeout   time.Duration
}

// MQTTSettings configures identification event publishing.
type MQTTSettings struct {
	Enabled  bool
	Broker   string // e.g. tcp://localhost:1883
	Topic    string
	ClientID string
	Username string
	Password string
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// Settings is the root configuration.
type Settings struct {
	Debug bool

	Main struct {
		Name string
		Log  LogSettings
	}

	WebServer      WebServerSettings
	Audio          AudioSettings
	Detector       DetectorSettings
	Identification IdentificationSettings
	Classifier     ClassifierSettings
	Content        ContentSettings
	SpeciesInfo    SpeciesInfoSettings
	MQTT           MQTTSettings
	Sentry         SentrySettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
// An explicit configFile takes precedence over the default search paths.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	resolveFfmpegPath(settings)

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper(configFile string) error {
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		// Bad env values are reported but do not stop startup
		GetLogger().Warn("environment variable issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		configPaths, err := configSearchPaths()
		if err != nil {
			return fmt.Errorf("error getting default config paths: %w", err)
		}
		for _, path := range configPaths {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			GetLogger().Info("no config file found, using defaults")
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	GetLogger().Info("loaded config file", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// LoggerConfig converts the log section into a logger.Config.
func (s *Settings) LoggerConfig() logger.Config {
	cfg := logger.Config{
		Level:        s.Main.Log.Level,
		Timezone:     s.Main.Log.Timezone,
		Console:      s.Main.Log.Console,
		FilePath:     s.Main.Log.File,
		ModuleLevels: s.Main.Log.ModuleLevels,
	}
	if s.Debug {
		cfg.Level = string(logger.LogLevelDebug)
	}
	return cfg
}

// ClassifierLabels returns the label table keyed by integer class id.
func (s *Settings) ClassifierLabels() (map[int]string, error) {
	labels := make(map[int]string, len(s.Classifier.Labels))
	for k, v := range s.Classifier.Labels {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("classifier label key %q is not an integer: %w", k, err)
		}
		labels[id] = v
	}
	return labels, nil
}
