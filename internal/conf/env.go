// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/gommon/bytes"
	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "BIRDWATCH_DEBUG", validateEnvBool},
		{"main.log.level", "BIRDWATCH_LOG_LEVEL", validateEnvLogLevel},

		{"webserver.port", "BIRDWATCH_PORT", validateEnvPort},
		{"webserver.maxupload", "BIRDWATCH_MAX_UPLOAD", validateEnvByteSize},
		{"webserver.ratelimit", "BIRDWATCH_RATE_LIMIT", validateEnvNonNegative},

		{"audio.targetduration", "BIRDWATCH_TARGET_DURATION", validateEnvDuration},
		{"audio.ffmpegpath", "BIRDWATCH_FFMPEG_PATH", nil},
		{"audio.tempdir", "BIRDWATCH_TEMP_DIR", nil},

		{"detector.backend", "BIRDWATCH_DETECTOR_BACKEND", validateEnvBackend},
		{"detector.modelpath", "BIRDWATCH_DETECTOR_MODEL", nil},
		{"detector.labelpath", "BIRDWATCH_DETECTOR_LABELS", nil},
		{"detector.embeddingmodelpath", "BIRDWATCH_EMBEDDING_MODEL", nil},
		{"detector.threads", "BIRDWATCH_THREADS", validateEnvThreads},
		{"detector.remoteurl", "BIRDWATCH_DETECTOR_URL", validateEnvURL},

		{"identification.discardthreshold", "BIRDWATCH_DISCARD_THRESHOLD", validateEnvThreshold},
		{"identification.acceptthreshold", "BIRDWATCH_ACCEPT_THRESHOLD", validateEnvThreshold},

		{"classifier.modelpath", "BIRDWATCH_CLASSIFIER_MODEL", nil},
		{"classifier.labelpath", "BIRDWATCH_CLASSIFIER_LABELS", nil},

		{"content.datadir", "BIRDWATCH_DATA_DIR", nil},
		{"content.backend", "BIRDWATCH_CONTENT_BACKEND", nil},

		{"mqtt.enabled", "BIRDWATCH_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "BIRDWATCH_MQTT_BROKER", validateEnvURL},
		{"mqtt.password", "BIRDWATCH_MQTT_PASSWORD", nil},

		{"sentry.enabled", "BIRDWATCH_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "BIRDWATCH_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean: %w", err)
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("unknown log level %q", value)
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvByteSize(value string) error {
	if _, err := bytes.Parse(value); err != nil {
		return fmt.Errorf("invalid byte size: %w", err)
	}
	return nil
}

func validateEnvNonNegative(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number: %w", err)
	}
	if f < 0 {
		return fmt.Errorf("must not be negative, got %g", f)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func validateEnvBackend(value string) error {
	switch value {
	case DetectorBackendLocal, DetectorBackendRemote:
		return nil
	}
	return fmt.Errorf("backend must be %q or %q, got %q", DetectorBackendLocal, DetectorBackendRemote, value)
}

func validateEnvThreads(value string) error {
	threads, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid threads: %w", err)
	}
	if threads < 0 {
		return fmt.Errorf("threads must be non-negative, got %d", threads)
	}
	return nil
}

// validateEnvThreshold validates probability thresholds
func validateEnvThreshold(value string) error {
	threshold, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid threshold: %w", err)
	}
	if threshold < 0.0 || threshold > 1.0 {
		return fmt.Errorf("threshold must be between 0.0 and 1.0, got %g", threshold)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url must include scheme and host, got %q", value)
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars()
}
