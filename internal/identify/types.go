package identify

import (
	"context"
)

// Detection is one per-segment prediction of the primary detector.
type Detection struct {
	ScientificName string
	CommonName     string
	Confidence     float64
	Start          float64 // segment start, seconds
	End            float64 // segment end, seconds
}

// AggregatedDetection is the mean confidence of one species across segments.
type AggregatedDetection struct {
	ScientificName    string
	AverageConfidence float64
	Count             int
}

// Detector runs the primary acoustic model over an audio file.
type Detector interface {
	Detect(ctx context.Context, path string) ([]Detection, error)
}

// EmbeddingExtractor produces one feature vector per analysis segment of a file.
type EmbeddingExtractor interface {
	Embeddings(ctx context.Context, path string) ([][]float32, error)
}

// Classifier maps a feature vector to a class id.
type Classifier interface {
	Predict(vec []float32) (int, error)
}

// LabelMap maps classifier class ids to scientific names. Ids outside the map
// are not species the fallback model knows.
type LabelMap map[int]string

// DefaultLabels is the closed set of species known to the fallback classifier.
func DefaultLabels() LabelMap {
	return LabelMap{
		1: "Doliornis sclateri",
		2: "Hapalopsittaca melanotis",
	}
}

// SpeciesNotIdentified is returned by the fallback when no segment maps to a known label.
const SpeciesNotIdentified = "Species not identified"

// Result sources.
const (
	SourcePrimary  = "birdnet"
	SourceFallback = "own custom model for local species"
)

// Default decision thresholds.
const (
	DefaultDiscardThreshold = 0.1
	DefaultAcceptThreshold  = 0.5
)
