// conf/validate.go

package conf

import (
	"fmt"
	"strings"

	"github.com/labstack/gommon/bytes"
)

// Detector backends.
const (
	DetectorBackendLocal  = "local"
	DetectorBackendRemote = "remote"
)

// Content mirror backends.
const (
	ContentBackendHTTP = "http"
	ContentBackendGCS  = "gcs"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, validate := range []func(*Settings) error{
		validateWebServerSettings,
		validateAudioSettings,
		validateDetectorSettings,
		validateIdentificationSettings,
		validateClassifierSettings,
		validateContentSettings,
		validateMQTTSettings,
	} {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateWebServerSettings(s *Settings) error {
	var errs []string
	if err := validateEnvPort(s.WebServer.Port); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := bytes.Parse(s.WebServer.MaxUpload); err != nil {
		errs = append(errs, fmt.Sprintf("invalid max upload size %q", s.WebServer.MaxUpload))
	}
	if s.WebServer.RateLimit < 0 {
		errs = append(errs, "rate limit must not be negative")
	}
	if s.WebServer.RateLimit > 0 && s.WebServer.Burst < 1 {
		errs = append(errs, "rate limit burst must be at least 1")
	}
	return joinErrs("webserver", errs)
}

func validateAudioSettings(s *Settings) error {
	if s.Audio.TargetDuration <= 0 {
		return fmt.Errorf("audio: target duration must be positive, got %s", s.Audio.TargetDuration)
	}
	return nil
}

func validateDetectorSettings(s *Settings) error {
	var errs []string
	d := s.Detector
	switch d.Backend {
	case DetectorBackendLocal:
		if d.ModelPath == "" {
			errs = append(errs, "model path is required for the local backend")
		}
	case DetectorBackendRemote:
		if err := validateEnvURL(d.RemoteURL); err != nil {
			errs = append(errs, err.Error())
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown backend %q", d.Backend))
	}
	if d.Sensitivity < 0.1 || d.Sensitivity > 1.5 {
		errs = append(errs, fmt.Sprintf("sensitivity must be between 0.1 and 1.5, got %g", d.Sensitivity))
	}
	if d.Threads < 0 {
		errs = append(errs, "threads must be non-negative")
	}
	if d.MinConfidence < 0 || d.MinConfidence > 1 {
		errs = append(errs, "min confidence must be between 0 and 1")
	}
	if d.Overlap < 0 || d.Overlap >= 3 {
		errs = append(errs, fmt.Sprintf("overlap must be in [0, 3), got %g", d.Overlap))
	}
	return joinErrs("detector", errs)
}

func validateIdentificationSettings(s *Settings) error {
	var errs []string
	id := s.Identification
	if id.DiscardThreshold < 0 || id.DiscardThreshold > 1 {
		errs = append(errs, fmt.Sprintf("discard threshold must be between 0 and 1, got %g", id.DiscardThreshold))
	}
	if id.AcceptThreshold < 0 || id.AcceptThreshold > 1 {
		errs = append(errs, fmt.Sprintf("accept threshold must be between 0 and 1, got %g", id.AcceptThreshold))
	}
	return joinErrs("identification", errs)
}

func validateClassifierSettings(s *Settings) error {
	if s.Classifier.LabelPath != "" {
		return nil
	}
	if len(s.Classifier.Labels) == 0 {
		return fmt.Errorf("classifier: label table is empty")
	}
	if _, err := s.ClassifierLabels(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	return nil
}

func validateContentSettings(s *Settings) error {
	switch s.Content.Backend {
	case ContentBackendHTTP:
		if err := validateEnvURL(s.Content.BucketURL); err != nil {
			return fmt.Errorf("content: %w", err)
		}
	case ContentBackendGCS:
		if s.Content.Bucket == "" {
			return fmt.Errorf("content: bucket name is required for the gcs backend")
		}
	default:
		return fmt.Errorf("content: unknown backend %q", s.Content.Backend)
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	if !s.MQTT.Enabled {
		return nil
	}
	var errs []string
	if err := validateEnvURL(s.MQTT.Broker); err != nil {
		errs = append(errs, err.Error())
	}
	if s.MQTT.Topic == "" {
		errs = append(errs, "topic is required")
	}
	return joinErrs("mqtt", errs)
}

func joinErrs(section string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %s", section, strings.Join(errs, ", "))
}
