package myaudio

import (
	"context"
	"time"

	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// DefaultTargetDuration is the analysis window expected by the primary detector.
const DefaultTargetDuration = 3000 * time.Millisecond

// Normalizer decodes uploads and forces them to a fixed duration.
type Normalizer struct {
	decoder *Decoder
	target  time.Duration
}

// NewNormalizer returns a Normalizer producing clips of target duration.
// A non-positive target selects DefaultTargetDuration.
func NewNormalizer(target time.Duration, ffmpegPath string) *Normalizer {
	if target <= 0 {
		target = DefaultTargetDuration
	}
	return &Normalizer{
		decoder: &Decoder{FFmpegPath: ffmpegPath},
		target:  target,
	}
}

// Target returns the configured output duration.
func (n *Normalizer) Target() time.Duration {
	return n.target
}

// Normalize decodes data and pads or truncates it to the target duration.
// Decode failures are returned as *DecodeError.
func (n *Normalizer) Normalize(ctx context.Context, data []byte) (*Clip, error) {
	clip, err := n.decoder.Decode(ctx, data)
	if err != nil {
		return nil, err
	}

	fixed, err := FixDuration(clip, n.target)
	if err != nil {
		return nil, err
	}
	GetLogger().Debug("audio normalized",
		logger.String("format", clip.Format),
		logger.Int("sample_rate", clip.SampleRate),
		logger.Int("channels", clip.NumChannels),
		logger.Int64("source_ms", clip.DurationMS()),
		logger.Int64("target_ms", n.target.Milliseconds()))
	return fixed, nil
}

// FixDuration returns a copy of clip holding exactly SampleRate*d frames.
// Shorter input is followed by silence, longer input keeps only its head.
// The copy is bit-exact against the decoded samples. 8-bit sources are
// already widened to signed 16-bit by the decoder, so their silence pads as
// zero rather than the unsigned 128 midpoint.
func FixDuration(clip *Clip, d time.Duration) (*Clip, error) {
	if err := validateStreamFormat(clip.SampleRate, clip.NumChannels); err != nil {
		return nil, err
	}
	if d < 0 {
		d = 0
	}

	// Split whole seconds from the remainder so rate*d cannot overflow int64
	rate := int64(clip.SampleRate)
	targetFrames := rate*int64(d/time.Second) + rate*int64(d%time.Second)/int64(time.Second)
	targetSamples := int(targetFrames) * clip.NumChannels

	samples := make([]int, targetSamples)
	copy(samples, clip.Samples)

	return &Clip{
		SampleRate:  clip.SampleRate,
		NumChannels: clip.NumChannels,
		BitDepth:    clip.BitDepth,
		Samples:     samples,
		Format:      clip.Format,
	}, nil
}
