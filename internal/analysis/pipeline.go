// Package analysis assembles the identification pipeline and the services
// around it from settings. The cmd packages are thin wrappers over it.
package analysis

import (
	"fmt"

	"github.com/birdwatch-app/birdwatch-go/internal/birdnet"
	"github.com/birdwatch-app/birdwatch-go/internal/classifier"
	"github.com/birdwatch-app/birdwatch-go/internal/conf"
	"github.com/birdwatch-app/birdwatch-go/internal/detectorclient"
	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/httpclient"
	"github.com/birdwatch-app/birdwatch-go/internal/identify"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
	"github.com/birdwatch-app/birdwatch-go/internal/myaudio"
)

// Option configures BuildPipeline.
type Option func(*options)

type options struct {
	observers  []identify.Observer
	httpClient *httpclient.Client
}

// WithObserver adds a pipeline observer.
func WithObserver(o identify.Observer) Option {
	return func(opts *options) { opts.observers = append(opts.observers, o) }
}

// WithHTTPClient sets the client used by the remote detector backend.
func WithHTTPClient(hc *httpclient.Client) Option {
	return func(opts *options) { opts.httpClient = hc }
}

// Components is an assembled pipeline plus the resources it holds.
type Components struct {
	Pipeline *identify.Pipeline
	Backend  string

	closers []func()
}

// Close releases model interpreters and connections. Safe on nil.
func (c *Components) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// backend is what a detector implementation provides to the pipeline.
type backend interface {
	identify.Detector
	identify.EmbeddingExtractor
}

// BuildPipeline loads the models named in settings and wires them into an
// identification pipeline.
func BuildPipeline(settings *conf.Settings, opts ...Option) (*Components, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Components{Backend: settings.Detector.Backend}

	det, err := newBackend(settings, o.httpClient, c)
	if err != nil {
		c.Close()
		return nil, err
	}

	mlp, err := classifier.Load(settings.Classifier.ModelPath)
	if err != nil {
		c.Close()
		return nil, err
	}

	labels, err := classifierLabels(settings)
	if err != nil {
		c.Close()
		return nil, err
	}

	pipelineOpts := []identify.Option{
		identify.WithAcceptThreshold(settings.Identification.AcceptThreshold),
	}
	for _, obs := range o.observers {
		pipelineOpts = append(pipelineOpts, identify.WithObserver(obs))
	}

	c.Pipeline = identify.NewPipeline(
		myaudio.NewNormalizer(settings.Audio.TargetDuration, settings.Audio.FfmpegPath),
		identify.NewPrimaryAdapter(det, settings.Identification.DiscardThreshold, settings.Audio.TempDir),
		identify.NewFallbackAdapter(det, mlp, labels),
		pipelineOpts...,
	)

	GetLogger().Info("identification pipeline ready",
		logger.String("backend", c.Backend),
		logger.Float64("discard_threshold", settings.Identification.DiscardThreshold),
		logger.Float64("accept_threshold", settings.Identification.AcceptThreshold),
		logger.Int("fallback_species", len(labels)),
		logger.Int("embedding_size", mlp.InputSize()))
	return c, nil
}

func newBackend(settings *conf.Settings, hc *httpclient.Client, c *Components) (backend, error) {
	switch settings.Detector.Backend {
	case conf.DetectorBackendLocal:
		bn, err := birdnet.New(birdnet.ConfigFromSettings(&settings.Detector))
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, bn.Delete)
		if !bn.HasEmbeddings() {
			GetLogger().Warn("no embedding model configured, fallback classification will fail",
				logger.String("model", bn.ModelInfo.ID))
		}
		return bn, nil

	case conf.DetectorBackendRemote:
		if hc == nil {
			hc = httpclient.New(&httpclient.Config{DefaultTimeout: settings.Detector.Timeout})
			c.closers = append(c.closers, hc.Close)
		}
		return detectorclient.New(settings.Detector.RemoteURL, settings.Detector.Overlap, hc), nil

	default:
		return nil, errors.Newf("unknown detector backend %q", settings.Detector.Backend).
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// classifierLabels prefers the label file over the inline table. An empty
// result selects the built-in species set.
func classifierLabels(settings *conf.Settings) (identify.LabelMap, error) {
	var (
		labels map[int]string
		err    error
	)
	if settings.Classifier.LabelPath != "" {
		labels, err = classifier.LoadLabels(settings.Classifier.LabelPath)
	} else {
		labels, err = settings.ClassifierLabels()
	}
	if err != nil {
		return nil, fmt.Errorf("classifier labels: %w", err)
	}
	if len(labels) == 0 {
		return identify.DefaultLabels(), nil
	}
	return labels, nil
}
