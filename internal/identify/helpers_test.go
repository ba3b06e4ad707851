package identify

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/birdwatch-app/birdwatch-go/internal/myaudio"
)

type fakeDetector struct {
	mu         sync.Mutex
	detections []Detection
	err        error
	panicWith  any
	seenPaths  []string
	existed    []bool
}

func (f *fakeDetector) Detect(_ context.Context, path string) ([]Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, statErr := os.Stat(path)
	f.seenPaths = append(f.seenPaths, path)
	f.existed = append(f.existed, statErr == nil)
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.detections, f.err
}

type fakeExtractor struct {
	mu         sync.Mutex
	embeddings [][]float32
	err        error
	seenPaths  []string
}

func (f *fakeExtractor) Embeddings(_ context.Context, path string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seenPaths = append(f.seenPaths, path)
	return f.embeddings, f.err
}

// fakeClassifier returns the class stored in the first vector element.
type fakeClassifier struct {
	err       error
	panicWith any
}

func (f *fakeClassifier) Predict(vec []float32) (int, error) {
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return 0, f.err
	}
	return int(vec[0]), nil
}

type recordingObserver struct {
	mu      sync.Mutex
	stages  []string
	results []Result
}

func (o *recordingObserver) StageCompleted(stage string, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) Completed(_ context.Context, res Result, _ Trace) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, res)
}

func newTestPipeline(t *testing.T, det *fakeDetector, ext *fakeExtractor, cls *fakeClassifier, opts ...Option) *Pipeline {
	t.Helper()
	return NewPipeline(
		myaudio.NewNormalizer(3*time.Second, ""),
		NewPrimaryAdapter(det, DefaultDiscardThreshold, t.TempDir()),
		NewFallbackAdapter(ext, cls, nil),
		opts...,
	)
}

func assertNoScratchLeft(t *testing.T, paths []string) {
	t.Helper()
	for _, p := range paths {
		_, err := os.Stat(p)
		require.ErrorIs(t, err, os.ErrNotExist, "scratch file %s was not removed", p)
	}
}

// panickingNormalizer stands in for a decoder that crashes on a crafted header.
type panickingNormalizer struct{}

func (panickingNormalizer) Normalize(context.Context, []byte) (*myaudio.Clip, error) {
	panic("makeslice: len out of range")
}
