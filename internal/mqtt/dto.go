package mqtt

import (
	"time"

	"github.com/birdwatch-app/birdwatch-go/internal/identify"
)

// EventDTO is the JSON payload of one identification event.
type EventDTO struct {
	ScientificName    string   `json:"scientific_name"`
	AverageConfidence *float64 `json:"average_confidence,omitempty"`
	Source            string   `json:"source"`
	Timestamp         string   `json:"timestamp"`
}

// NewEventDTO converts a result. Failures and unidentified fallbacks produce no event.
func NewEventDTO(res identify.Result, at time.Time) (*EventDTO, bool) {
	ts := at.UTC().Format(time.RFC3339)
	switch r := res.(type) {
	case identify.Identified:
		confidence := r.AverageConfidence
		return &EventDTO{
			ScientificName:    r.ScientificName,
			AverageConfidence: &confidence,
			Source:            r.Source(),
			Timestamp:         ts,
		}, true
	case identify.FallbackIdentified:
		if r.ScientificName == identify.SpeciesNotIdentified {
			return nil, false
		}
		return &EventDTO{
			ScientificName: r.ScientificName,
			Source:         r.Source(),
			Timestamp:      ts,
		}, true
	default:
		return nil, false
	}
}
