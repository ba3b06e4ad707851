package identify

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/birdwatch-app/birdwatch-go/internal/logger"
	"github.com/birdwatch-app/birdwatch-go/internal/myaudio"
)

// Pipeline stage names reported to observers.
const (
	StageNormalize = "normalize"
	StagePrimary   = "primary"
	StageFallback  = "fallback"
)

// Normalizer decodes an upload into a fixed-duration clip.
type Normalizer interface {
	Normalize(ctx context.Context, data []byte) (*myaudio.Clip, error)
}

// Observer is notified about stage timings and final results.
// Implementations must not block.
type Observer interface {
	StageCompleted(stage string, elapsed time.Duration, err error)
	Completed(ctx context.Context, res Result, trace Trace)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAcceptThreshold sets the mean confidence the primary result must exceed.
func WithAcceptThreshold(threshold float64) Option {
	return func(p *Pipeline) { p.acceptThreshold = threshold }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// Pipeline runs the identification decision policy.
type Pipeline struct {
	normalizer      Normalizer
	primary         *PrimaryAdapter
	fallback        *FallbackAdapter
	acceptThreshold float64
	observers       []Observer
}

// NewPipeline wires the three stages together.
func NewPipeline(normalizer Normalizer, primary *PrimaryAdapter, fallback *FallbackAdapter, opts ...Option) *Pipeline {
	p := &Pipeline{
		normalizer:      normalizer,
		primary:         primary,
		fallback:        fallback,
		acceptThreshold: DefaultAcceptThreshold,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Identify runs one identification over raw upload bytes. It always returns
// a Result; the trace records the states visited.
func (p *Pipeline) Identify(ctx context.Context, data []byte) (res Result, trace Trace) {
	trace = Trace{StateStart}
	log := GetLogger().WithContext(ctx)

	defer func() {
		p.notifyCompleted(ctx, res, trace)
	}()

	// Normalize
	start := time.Now()
	clip, err := p.runNormalize(ctx, data)
	p.notifyStage(StageNormalize, time.Since(start), err)
	if err != nil {
		var de *myaudio.DecodeError
		if !stderrors.As(err, &de) {
			de = &myaudio.DecodeError{Message: myaudio.DecodeFailedMessage, Details: err.Error()}
		}
		log.Info("upload rejected", logger.String("reason", de.Details))
		return Failure{Kind: FailureDecode, Message: de.Message, Details: de.Details, Err: err},
			append(trace, StateError)
	}
	trace = append(trace, StatePreprocessed)

	// Primary detector
	start = time.Now()
	outcome, err := p.runPrimary(ctx, clip)
	p.notifyStage(StagePrimary, time.Since(start), err)
	if outcome != nil {
		defer outcome.Scratch.Remove()
	}
	trace = append(trace, StatePrimaryAttempted)
	if err != nil {
		log.Error("primary detector failed", logger.Error(err))
		return Failure{
			Kind:    FailureDetector,
			Message: fmt.Sprintf("BirdNET analysis failed: %v", err),
			Err:     err,
		}, append(trace, StateError)
	}

	if outcome.Detected() {
		top := outcome.Top()
		log.Debug("primary detector result",
			logger.String("species", top.ScientificName),
			logger.Float64("confidence", top.AverageConfidence),
			logger.Int("segments", top.Count))
		if top.AverageConfidence > p.acceptThreshold {
			return Identified{
				ScientificName:    top.ScientificName,
				AverageConfidence: roundConfidence(top.AverageConfidence),
			}, append(trace, StatePrimaryAccepted, StateDone)
		}
	}

	// Fallback classifier over the same scratch file
	trace = append(trace, StateFallbackAttempted)
	start = time.Now()
	name, err := p.runFallback(ctx, outcome.Scratch.Path())
	p.notifyStage(StageFallback, time.Since(start), err)
	if err != nil {
		log.Error("fallback classifier failed", logger.Error(err))
		return Failure{
			Kind:    FailureFallback,
			Message: fmt.Sprintf("Fallback classification failed: %v", err),
			Err:     err,
		}, append(trace, StateError)
	}

	return FallbackIdentified{ScientificName: name}, append(trace, StateDone)
}

// runNormalize reports a normalizer panic as an undecodable upload.
func (p *Pipeline) runNormalize(ctx context.Context, data []byte) (clip *myaudio.Clip, err error) {
	defer func() {
		if r := recover(); r != nil {
			clip = nil
			err = &myaudio.DecodeError{
				Message: myaudio.DecodeFailedMessage,
				Details: fmt.Sprintf("normalizer panic: %v", r),
			}
		}
	}()
	return p.normalizer.Normalize(ctx, data)
}

// runPrimary converts adapter panics into errors. The adapter removes its
// scratch file before re-panicking.
func (p *Pipeline) runPrimary(ctx context.Context, clip *myaudio.Clip) (outcome *PrimaryOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = nil, &DetectorInvocationError{Cause: fmt.Errorf("detector panic: %v", r)}
		}
	}()
	return p.primary.Analyze(ctx, clip)
}

func (p *Pipeline) runFallback(ctx context.Context, path string) (name string, err error) {
	defer func() {
		if r := recover(); r != nil {
			name, err = "", fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return p.fallback.Classify(ctx, path)
}

func (p *Pipeline) notifyStage(stage string, elapsed time.Duration, err error) {
	for _, o := range p.observers {
		o.StageCompleted(stage, elapsed, err)
	}
}

func (p *Pipeline) notifyCompleted(ctx context.Context, res Result, trace Trace) {
	GetLogger().WithContext(ctx).Info("identification finished",
		logger.String("trace", trace.String()),
		logger.String("species", ScientificName(res)))
	for _, o := range p.observers {
		o.Completed(ctx, res, trace)
	}
}
