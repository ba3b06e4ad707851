package identify

import (
	"encoding/json"
	"math"
)

// Result is the outcome of one identification. It is one of Identified,
// FallbackIdentified or Failure.
type Result interface {
	isResult()
}

// Identified is a species accepted from the primary detector.
type Identified struct {
	ScientificName    string
	AverageConfidence float64 // rounded to 3 decimals
}

// FallbackIdentified is the fallback classifier's answer, possibly
// SpeciesNotIdentified.
type FallbackIdentified struct {
	ScientificName string
}

// FailureKind tells which stage failed.
type FailureKind int

const (
	FailureDecode FailureKind = iota
	FailureDetector
	FailureFallback
)

func (k FailureKind) String() string {
	switch k {
	case FailureDecode:
		return "decode"
	case FailureDetector:
		return "detector"
	case FailureFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Failure is a run that ended without an identification.
type Failure struct {
	Kind    FailureKind
	Message string
	Details string
	Err     error
}

func (Identified) isResult()         {}
func (FallbackIdentified) isResult() {}
func (Failure) isResult()            {}

// Source returns the model that produced the result.
func (Identified) Source() string { return SourcePrimary }

// Source returns the model that produced the result.
func (FallbackIdentified) Source() string { return SourceFallback }

func (r Identified) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ScientificName    string  `json:"scientific_name"`
		AverageConfidence float64 `json:"average_confidence"`
		Source            string  `json:"source"`
	}{r.ScientificName, r.AverageConfidence, r.Source()})
}

func (r FallbackIdentified) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ScientificName string `json:"scientific_name"`
		Source         string `json:"source"`
	}{r.ScientificName, r.Source()})
}

func (r Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error   string `json:"error"`
		Details string `json:"details,omitempty"`
	}{r.Message, r.Details})
}

// ScientificName returns the identified species, or "" for failures.
func ScientificName(r Result) string {
	switch v := r.(type) {
	case Identified:
		return v.ScientificName
	case FallbackIdentified:
		return v.ScientificName
	default:
		return ""
	}
}

// roundConfidence rounds to 3 decimal places.
func roundConfidence(v float64) float64 {
	return math.Round(v*1000) / 1000
}
