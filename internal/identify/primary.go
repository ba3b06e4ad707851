package identify

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
	"github.com/birdwatch-app/birdwatch-go/internal/myaudio"
)

// DetectorInvocationError reports that the primary detector failed to run.
type DetectorInvocationError struct {
	Cause error
}

func (e *DetectorInvocationError) Error() string {
	return e.Cause.Error()
}

func (e *DetectorInvocationError) Unwrap() error {
	return e.Cause
}

// PrimaryOutcome is the aggregated detector output. Scratch holds the WAV file
// the detector read; the caller owns it and must Remove it.
type PrimaryOutcome struct {
	Aggregated []AggregatedDetection
	Scratch    *ScratchFile
}

// Detected reports whether any species survived the discard threshold.
func (o *PrimaryOutcome) Detected() bool {
	return o != nil && len(o.Aggregated) > 0
}

// Top returns the highest-confidence species. Only valid when Detected.
func (o *PrimaryOutcome) Top() AggregatedDetection {
	return o.Aggregated[0]
}

// PrimaryAdapter writes clips to scratch files and runs the detector on them.
type PrimaryAdapter struct {
	detector         Detector
	discardThreshold float64
	tempDir          string
}

// NewPrimaryAdapter creates an adapter around detector. Detections with a
// confidence below discardThreshold are ignored.
func NewPrimaryAdapter(detector Detector, discardThreshold float64, tempDir string) *PrimaryAdapter {
	return &PrimaryAdapter{
		detector:         detector,
		discardThreshold: discardThreshold,
		tempDir:          tempDir,
	}
}

// Analyze materializes clip and runs the detector. On detector failure the
// returned outcome still carries the scratch file so it can be removed.
func (a *PrimaryAdapter) Analyze(ctx context.Context, clip *myaudio.Clip) (outcome *PrimaryOutcome, err error) {
	scratch, err := NewScratchFile(a.tempDir)
	if err != nil {
		return nil, &DetectorInvocationError{Cause: errors.New(err).
			Component("identify").
			Category(errors.CategoryFileIO).
			Context("operation", "create_scratch_file").
			Build()}
	}
	outcome = &PrimaryOutcome{Scratch: scratch}

	// A panicking detector must not leak the file
	defer func() {
		if r := recover(); r != nil {
			scratch.Remove()
			panic(r)
		}
	}()

	if err := myaudio.WriteWAV(scratch.Path(), clip); err != nil {
		return outcome, &DetectorInvocationError{Cause: errors.New(err).
			Component("identify").
			Category(errors.CategoryFileIO).
			Context("operation", "write_scratch_wav").
			Build()}
	}

	start := time.Now()
	detections, err := a.detector.Detect(ctx, scratch.Path())
	if err != nil {
		return outcome, &DetectorInvocationError{Cause: err}
	}

	outcome.Aggregated = Aggregate(detections, a.discardThreshold)

	GetLogger().Debug("primary detector finished",
		logger.Int("detections", len(detections)),
		logger.Int("species", len(outcome.Aggregated)),
		logger.Duration("elapsed", time.Since(start)))

	return outcome, nil
}

// Aggregate drops detections below threshold, then averages the confidence
// of each species. The result is sorted by mean confidence, highest first,
// with ties broken by name.
func Aggregate(detections []Detection, threshold float64) []AggregatedDetection {
	type acc struct {
		sum   float64
		count int
	}
	sums := make(map[string]*acc)
	var order []string

	for _, d := range detections {
		if d.Confidence < threshold {
			continue
		}
		a, ok := sums[d.ScientificName]
		if !ok {
			a = &acc{}
			sums[d.ScientificName] = a
			order = append(order, d.ScientificName)
		}
		a.sum += d.Confidence
		a.count++
	}

	out := make([]AggregatedDetection, 0, len(order))
	for _, name := range order {
		a := sums[name]
		out = append(out, AggregatedDetection{
			ScientificName:    name,
			AverageConfidence: a.sum / float64(a.count),
			Count:             a.count,
		})
	}

	slices.SortStableFunc(out, func(x, y AggregatedDetection) int {
		if c := cmp.Compare(y.AverageConfidence, x.AverageConfidence); c != 0 {
			return c
		}
		return cmp.Compare(x.ScientificName, y.ScientificName)
	})
	return out
}

// String implements fmt.Stringer for log output.
func (a AggregatedDetection) String() string {
	return fmt.Sprintf("%s (%.3f, n=%d)", a.ScientificName, a.AverageConfidence, a.Count)
}
