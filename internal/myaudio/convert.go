package myaudio

import (
	"fmt"
)

// Standard analysis parameters of BirdNET-style detectors.
const (
	AnalysisSampleRate = 48000
	AnalysisChunkSec   = 3.0
	AnalysisMinSec     = 1.5
)

// getAudioDivisor returns the full-scale value for a signed PCM bit depth.
func getAudioDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("unsupported audio bit depth: %d", bitDepth)
	}
}

// ToMonoFloat32 downmixes clip to mono and scales samples into [-1, 1).
func ToMonoFloat32(clip *Clip) ([]float32, error) {
	divisor, err := getAudioDivisor(clip.BitDepth)
	if err != nil {
		return nil, err
	}

	channels := max(clip.NumChannels, 1)
	frames := len(clip.Samples) / channels
	out := make([]float32, frames)
	for f := range frames {
		var sum int64
		for c := range channels {
			sum += int64(clip.Samples[f*channels+c])
		}
		out[f] = float32(sum) / float32(channels) / divisor
	}
	return out, nil
}

// Resample converts samples from one rate to another by linear interpolation.
func Resample(samples []float32, from, to int) ([]float32, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid sample rates: from %d to %d", from, to)
	}
	if from == to || len(samples) == 0 {
		return samples, nil
	}

	outLen := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float32, outLen)
	ratio := float64(from) / float64(to)
	last := len(samples) - 1

	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out, nil
}

// SplitChunks cuts samples into windows of chunkSec seconds advancing by
// chunkSec-overlapSec. A trailing remainder of at least minSec seconds is
// zero-padded to a full window, shorter remainders are dropped.
func SplitChunks(samples []float32, sampleRate int, chunkSec, overlapSec, minSec float64) [][]float32 {
	chunkLen := int(chunkSec * float64(sampleRate))
	step := int((chunkSec - overlapSec) * float64(sampleRate))
	minLen := int(minSec * float64(sampleRate))
	if chunkLen <= 0 || step <= 0 {
		return nil
	}

	var chunks [][]float32
	start := 0
	for ; start+chunkLen <= len(samples); start += step {
		chunks = append(chunks, samples[start:start+chunkLen])
	}

	if rest := len(samples) - start; rest > 0 && rest >= minLen {
		// Only emit the tail when it holds audio not already covered
		if len(chunks) == 0 || start+chunkLen-step < len(samples) {
			padded := make([]float32, chunkLen)
			copy(padded, samples[start:])
			chunks = append(chunks, padded)
		}
	}
	return chunks
}
