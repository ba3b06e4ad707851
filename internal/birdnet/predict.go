package birdnet

import (
	"fmt"
	"math"
	"sort"

	"github.com/tphakala/go-tflite"
)

// Result is one label with its confidence for a single segment.
type Result struct {
	Label      Label
	Confidence float32
}

// Predict runs the analysis model on one 3 second segment at 48 kHz and
// returns the top results that pass the minimum confidence.
func (bn *BirdNET) Predict(sample []float32) ([]Result, error) {
	// one interpreter, one caller at a time
	bn.mu.Lock()
	defer bn.mu.Unlock()

	if bn.AnalysisInterpreter == nil {
		return nil, fmt.Errorf("analysis interpreter is closed")
	}
	predictions, err := invoke(bn.AnalysisInterpreter, sample)
	if err != nil {
		return nil, err
	}

	confidence := applySigmoidToPredictions(predictions, bn.config.Sensitivity)
	results, err := pairLabelsAndConfidence(bn.Labels, confidence)
	if err != nil {
		return nil, err
	}
	results = filterResults(results, bn.config.MinConfidence)
	sortResults(results)
	return trimResultsToMax(results, bn.config.TopN), nil
}

// Embed runs the embedding model on one segment.
func (bn *BirdNET) Embed(sample []float32) ([]float32, error) {
	bn.mu.Lock()
	defer bn.mu.Unlock()

	if bn.EmbeddingInterpreter == nil {
		return nil, ErrNoEmbeddingModel
	}
	return invoke(bn.EmbeddingInterpreter, sample)
}

func invoke(interpreter *tflite.Interpreter, sample []float32) ([]float32, error) {
	input := interpreter.GetInputTensor(0)
	if input == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	buf := input.Float32s()
	if len(sample) != len(buf) {
		return nil, fmt.Errorf("segment has %d samples, model expects %d", len(sample), len(buf))
	}
	copy(buf, sample)

	if status := interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	output := interpreter.GetOutputTensor(0)
	if output == nil {
		return nil, fmt.Errorf("cannot get output tensor")
	}
	return extractPredictions(output.Float32s()), nil
}

// extractPredictions copies the tensor buffer, which the next Invoke overwrites.
func extractPredictions(data []float32) []float32 {
	out := make([]float32, len(data))
	copy(out, data)
	return out
}

func customSigmoid(x, sensitivity float64) float64 {
	return 1.0 / (1.0 + math.Exp(-sensitivity*x))
}

func applySigmoidToPredictions(predictions []float32, sensitivity float64) []float32 {
	out := make([]float32, len(predictions))
	for i, p := range predictions {
		out[i] = float32(customSigmoid(float64(p), sensitivity))
	}
	return out
}

func pairLabelsAndConfidence(labels []Label, preds []float32) ([]Result, error) {
	if len(labels) != len(preds) {
		return nil, fmt.Errorf("mismatched labels and predictions lengths: %d vs %d", len(labels), len(preds))
	}
	results := make([]Result, len(labels))
	for i, label := range labels {
		results[i] = Result{Label: label, Confidence: preds[i]}
	}
	return results, nil
}

func filterResults(results []Result, minConfidence float64) []Result {
	if minConfidence <= 0 {
		return results
	}
	kept := results[:0]
	for _, r := range results {
		if float64(r.Confidence) >= minConfidence {
			kept = append(kept, r)
		}
	}
	return kept
}

// sortResults orders by confidence descending, ties by scientific name.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].Label.ScientificName < results[j].Label.ScientificName
	})
}

func trimResultsToMax(results []Result, maxResults int) []Result {
	if maxResults > 0 && len(results) > maxResults {
		return results[:maxResults]
	}
	return results
}
