// Package errors wraps errors with a component, a category and context so
// that failures can be grouped in logs and telemetry. It also passes through
// the standard library helpers so callers need a single import.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors that share a cause.
type ErrorCategory string

// CategorizedError is implemented by errors that know their own category.
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryModelInit      ErrorCategory = "model-initialization"
	CategoryModelLoad      ErrorCategory = "model-loading"
	CategoryLabelLoad      ErrorCategory = "label-loading"
	CategoryValidation     ErrorCategory = "validation"
	CategoryFileIO         ErrorCategory = "file-io"
	CategoryFileParsing    ErrorCategory = "file-parsing"
	CategoryNetwork        ErrorCategory = "network"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryLimit          ErrorCategory = "limit"
	CategoryAudio          ErrorCategory = "audio-processing"
	CategoryAudioDecode    ErrorCategory = "audio-decode"
	CategoryAudioAnalysis  ErrorCategory = "audio-analysis"
	CategoryClassification ErrorCategory = "classification"
	CategoryHTTP           ErrorCategory = "http-request"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategorySystem         ErrorCategory = "system-resource"
	CategoryMQTTConnect    ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish    ErrorCategory = "mqtt-publish"
	CategoryContentFetch   ErrorCategory = "content-fetch"
	CategorySpeciesInfo    ErrorCategory = "species-info"
	CategoryNotFound       ErrorCategory = "not-found"
	CategoryGeneric        ErrorCategory = "generic"
)

// ComponentUnknown is used when no component was given and none could be
// read from the call stack.
const ComponentUnknown = "unknown"

const internalPrefix = "birdwatch-go/internal/"

// componentAliases renames packages whose directory name is not the
// component name used in telemetry.
var componentAliases = map[string]string{
	"conf": "configuration",
}

// reporting is set while an enabled reporter is installed. Builds skip the
// stack walk when it is false.
var reporting atomic.Bool

// EnhancedError is an error annotated with where it happened and what kind
// of failure it is.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time

	component string
	reported  atomic.Bool
}

func (ee *EnhancedError) Error() string { return ee.Err.Error() }

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is matches another EnhancedError by category, anything else through the
// wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetComponent returns the component the error was raised in.
func (ee *EnhancedError) GetComponent() string { return ee.component }

// GetCategory returns the category as a string.
func (ee *EnhancedError) GetCategory() string { return string(ee.Category) }

// GetContext returns a copy of the context map.
func (ee *EnhancedError) GetContext() map[string]any {
	return maps.Clone(ee.Context)
}

// MarkReported records that the error has been sent to telemetry.
func (ee *EnhancedError) MarkReported() { ee.reported.Store(true) }

// IsReported reports whether the error has been sent to telemetry.
func (ee *EnhancedError) IsReported() bool { return ee.reported.Load() }

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts building an enhanced error around err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts building an enhanced error from a format string.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component. Without it the component is read from the
// call stack when telemetry is active.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the category. Without it the category is guessed from the
// message and component.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context attaches one key/value pair.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// FileContext records the kind of file involved without its path.
func (eb *ErrorBuilder) FileContext(path string, size int64) *ErrorBuilder {
	if path != "" {
		eb.Context("file_type", pathKind(path))
		eb.Context("file_extension", extension(path))
	}
	if size > 0 {
		eb.Context("file_size_category", sizeClass(size))
	}
	return eb
}

// Build creates the error and hands it to the telemetry reporter, if one
// is installed.
func (eb *ErrorBuilder) Build() *EnhancedError {
	active := reporting.Load()

	component := eb.component
	if component == "" {
		component = ComponentUnknown
		if active {
			component = callerComponent()
		}
	}
	category := eb.category
	if category == "" {
		category = detectCategory(eb.err, component)
	}

	ee := &EnhancedError{
		Err:       eb.err,
		component: component,
		Category:  category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
	if active {
		reportToTelemetry(ee)
	}
	return ee
}

// callerComponent walks the stack for the first frame inside an internal
// package other than this one.
func callerComponent() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if c := componentOf(frame.Function); c != "" && c != "errors" {
			return c
		}
		if !more {
			return ComponentUnknown
		}
	}
}

// componentOf maps a fully qualified function name to its internal package.
func componentOf(funcName string) string {
	_, rest, ok := strings.Cut(funcName, internalPrefix)
	if !ok {
		return ""
	}
	pkg, _, _ := strings.Cut(rest, "/")
	pkg, _, _ = strings.Cut(pkg, ".")
	if alias, ok := componentAliases[pkg]; ok {
		return alias
	}
	return pkg
}

type messageRule struct {
	requires string
	anyOf    []string
	category ErrorCategory
}

// messageRules are checked in order against the lower-cased message.
var messageRules = []messageRule{
	{"model", []string{"load", "read"}, CategoryModelLoad},
	{"model", []string{"init", "create"}, CategoryModelInit},
	{"", []string{"label"}, CategoryLabelLoad},
	{"", []string{"file", "read", "open"}, CategoryFileIO},
	{"", []string{"connection", "timeout"}, CategoryNetwork},
	{"", []string{"validation", "mismatch", "invalid"}, CategoryValidation},
}

var componentCategories = map[string]ErrorCategory{
	"birdnet":        CategoryAudioAnalysis,
	"detectorclient": CategoryAudioAnalysis,
	"classifier":     CategoryClassification,
	"myaudio":        CategoryAudio,
	"catalog":        CategoryContentFetch,
	"speciesinfo":    CategorySpeciesInfo,
	"api":            CategoryHTTP,
}

func detectCategory(err error, component string) ErrorCategory {
	var catErr CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr.ErrorCategory()
	}
	var ee *EnhancedError
	if stderrors.As(err, &ee) && ee.Category != "" {
		return ee.Category
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		if rule.requires != "" && !strings.Contains(msg, rule.requires) {
			continue
		}
		for _, kw := range rule.anyOf {
			if strings.Contains(msg, kw) {
				return rule.category
			}
		}
	}

	if c, ok := componentCategories[component]; ok {
		return c
	}
	return CategoryGeneric
}

func pathKind(path string) string {
	if strings.ContainsAny(path, `/\`) {
		return "absolute-path"
	}
	return "relative-path"
}

func extension(path string) string {
	if ext := filepath.Ext(path); len(ext) > 1 {
		return strings.ToLower(ext[1:])
	}
	return "none"
}

func sizeClass(size int64) string {
	switch {
	case size < 1<<10:
		return "tiny"
	case size < 1<<20:
		return "small"
	case size < 10<<20:
		return "medium"
	case size < 100<<20:
		return "large"
	default:
		return "very-large"
	}
}

// NewStd returns a plain error, as errors.New in the standard library.
func NewStd(text string) error { return stderrors.New(text) }

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Unwrap returns the error wrapped by err, if any.
func Unwrap(err error) error { return stderrors.Unwrap(err) }

// Join wraps the given errors into one.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// IsCategory reports whether err is an EnhancedError of the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	return As(err, &ee) && ee.Category == category
}

// IsNotFound reports whether err carries CategoryNotFound.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}
