package birdnet

import (
	"context"
	"fmt"
	"time"

	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/identify"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
	"github.com/birdwatch-app/birdwatch-go/internal/myaudio"
)

// ErrNoEmbeddingModel is returned by Embeddings when no embedding model was configured.
var ErrNoEmbeddingModel = errors.NewStd("embedding model not configured")

var (
	_ identify.Detector           = (*BirdNET)(nil)
	_ identify.EmbeddingExtractor = (*BirdNET)(nil)
)

// Detect implements identify.Detector. It returns one Detection per label
// kept for each analysis segment of the file.
func (bn *BirdNET) Detect(ctx context.Context, path string) ([]identify.Detection, error) {
	chunks, err := bn.loadChunks(path)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	step := myaudio.AnalysisChunkSec - bn.config.Overlap
	var detections []identify.Detection
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results, err := bn.Predict(chunk)
		if err != nil {
			return nil, errors.New(fmt.Errorf("prediction failed: %w", err)).
				Component("birdnet").
				Category(errors.CategoryAudioAnalysis).
				ModelContext(bn.ModelInfo.Path, bn.ModelInfo.ID).
				Context("segment", i).
				Build()
		}
		segStart := float64(i) * step
		for _, r := range results {
			detections = append(detections, identify.Detection{
				ScientificName: r.Label.ScientificName,
				CommonName:     r.Label.CommonName,
				Confidence:     float64(r.Confidence),
				Start:          segStart,
				End:            segStart + myaudio.AnalysisChunkSec,
			})
		}
	}

	GetLogger().Debug("analysis completed",
		logger.Int("segments", len(chunks)),
		logger.Int("detections", len(detections)),
		logger.Duration("duration", time.Since(start)))
	return detections, nil
}

// Embeddings implements identify.EmbeddingExtractor, one vector per segment.
func (bn *BirdNET) Embeddings(ctx context.Context, path string) ([][]float32, error) {
	if !bn.HasEmbeddings() {
		return nil, ErrNoEmbeddingModel
	}
	chunks, err := bn.loadChunks(path)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(chunks))
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := bn.Embed(chunk)
		if err != nil {
			return nil, errors.New(fmt.Errorf("embedding failed: %w", err)).
				Component("birdnet").
				Category(errors.CategoryAudioAnalysis).
				ModelContext(bn.config.EmbeddingModelPath, "embeddings").
				Context("segment", i).
				Build()
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

// loadChunks reads a file and cuts it into 48 kHz mono analysis segments.
func (bn *BirdNET) loadChunks(path string) ([][]float32, error) {
	clip, err := myaudio.ReadAudioFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("birdnet").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	return PrepareChunks(clip, bn.config.Overlap)
}

// PrepareChunks converts a clip into the segments the model consumes.
func PrepareChunks(clip *myaudio.Clip, overlap float64) ([][]float32, error) {
	mono, err := myaudio.ToMonoFloat32(clip)
	if err != nil {
		return nil, err
	}
	samples, err := myaudio.Resample(mono, clip.SampleRate, myaudio.AnalysisSampleRate)
	if err != nil {
		return nil, err
	}
	chunks := myaudio.SplitChunks(samples, myaudio.AnalysisSampleRate,
		myaudio.AnalysisChunkSec, overlap, myaudio.AnalysisMinSec)
	if len(chunks) == 0 {
		return nil, errors.Newf("audio shorter than %.1f seconds", myaudio.AnalysisMinSec).
			Component("birdnet").
			Category(errors.CategoryAudio).
			Build()
	}
	return chunks, nil
}
