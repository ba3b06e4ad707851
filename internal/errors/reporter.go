package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives every error built while it is installed and
// enabled.
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter forwards scrubbed errors to the Sentry hub.
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter returns a reporter that sends to Sentry when enabled.
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

func (sr *SentryReporter) IsEnabled() bool { return sr.enabled }

// ReportError sends ee once. Messages and string context values are
// scrubbed of credentials and directory names first.
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	msg := scrub(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	title := errorTitle(ee)
	level := levelFor(ee.Category)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))
		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrub(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		scope.SetLevel(level)
		scope.SetFingerprint([]string{title, ee.GetComponent(), string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = msg
		event.Level = level
		event.Exception = []sentry.Exception{{Type: title, Value: msg}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

var categoryTitles = map[ErrorCategory]string{
	CategoryValidation:     "Validation Error",
	CategoryNetwork:        "Network Error",
	CategoryFileIO:         "File I/O Error",
	CategoryModelInit:      "Model Initialization Error",
	CategoryModelLoad:      "Model Loading Error",
	CategoryAudioAnalysis:  "Audio Analysis Error",
	CategoryAudioDecode:    "Audio Decode Error",
	CategoryClassification: "Classification Error",
	CategoryConfiguration:  "Configuration Error",
	CategorySystem:         "System Error",
}

// errorTitle builds "<Component> <Category> <Operation>" from whatever of
// the three is known.
func errorTitle(ee *EnhancedError) string {
	var parts []string
	if c := ee.GetComponent(); c != "" && c != ComponentUnknown {
		parts = append(parts, capitalize(c))
	}
	if t, ok := categoryTitles[ee.Category]; ok {
		parts = append(parts, t)
	} else if ee.Category != "" {
		parts = append(parts, string(ee.Category))
	}
	if op, ok := ee.Context["operation"].(string); ok && op != "" {
		for w := range strings.FieldsSeq(strings.ReplaceAll(op, "_", " ")) {
			parts = append(parts, capitalize(w))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%T", ee.Err)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// levelFor treats client input problems as info and transient remote
// failures as warnings.
func levelFor(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryAudioDecode, CategoryValidation, CategoryNotFound:
		return sentry.LevelInfo
	case CategoryNetwork, CategoryTimeout, CategoryContentFetch, CategorySpeciesInfo,
		CategoryMQTTConnect, CategoryMQTTPublish, CategoryFileIO, CategoryAudio, CategoryHTTP:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

var (
	reporterMu sync.RWMutex
	reporter   TelemetryReporter
)

// SetTelemetryReporter installs r as the process-wide reporter. nil removes
// the current one.
func SetTelemetryReporter(r TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
	reporting.Store(r != nil && r.IsEnabled())
}

func reportToTelemetry(ee *EnhancedError) {
	reporterMu.RLock()
	r := reporter
	reporterMu.RUnlock()
	if r != nil && r.IsEnabled() {
		r.ReportError(ee)
	}
}

var (
	queryPattern  = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|token|auth|password)[=:]\S+|[0-9a-fA-F]{32,}`)
	dirPattern    = regexp.MustCompile(`(/[^/\s]+){2,}/([^/\s]+)`)
)

// scrub drops query strings, credentials and directory names from s.
func scrub(s string) string {
	s = queryPattern.ReplaceAllString(s, "$1?[REDACTED]")
	s = secretPattern.ReplaceAllString(s, "[API_KEY_REDACTED]")
	return dirPattern.ReplaceAllString(s, "[PATH]/$2")
}
