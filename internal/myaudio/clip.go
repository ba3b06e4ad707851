package myaudio

import (
	"fmt"
	"time"
)

// Container formats a Clip can be decoded from.
const (
	FormatWAV    = "wav"
	FormatFLAC   = "flac"
	FormatFFmpeg = "ffmpeg"
)

// DecodeFailedMessage is the client-facing message for undecodable uploads.
const DecodeFailedMessage = "Unsupported or corrupt audio file."

// Clip is decoded integer PCM audio. Samples are interleaved by channel.
type Clip struct {
	SampleRate  int
	NumChannels int
	BitDepth    int
	Samples     []int
	Format      string
}

// Frames returns the number of sample frames (samples per channel).
func (c *Clip) Frames() int {
	if c == nil || c.NumChannels == 0 {
		return 0
	}
	return len(c.Samples) / c.NumChannels
}

// Duration returns the playback duration of the clip.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate == 0 {
		return 0
	}
	return time.Duration(int64(c.Frames()) * int64(time.Second) / int64(c.SampleRate))
}

// DurationMS returns the duration in whole milliseconds.
func (c *Clip) DurationMS() int64 {
	return c.Duration().Milliseconds()
}

// DecodeError reports an upload that could not be decoded. Message is safe to
// return to clients, Details carries the decoder's explanation.
type DecodeError struct {
	Message string
	Details string
}

func (e *DecodeError) Error() string {
	if e.Details == "" {
		return e.Message
	}
	return e.Message + " " + e.Details
}

func newDecodeError(details string) *DecodeError {
	return &DecodeError{Message: DecodeFailedMessage, Details: details}
}

// Stream format limits. Header fields come from the client and size every
// buffer after decode.
const (
	MaxSampleRate  = 384000
	MaxNumChannels = 8
)

// validateStreamFormat rejects header values no supported recorder produces.
func validateStreamFormat(sampleRate, numChannels int) error {
	if sampleRate < 1 || sampleRate > MaxSampleRate {
		return newDecodeError(fmt.Sprintf("unsupported sample rate: %d Hz", sampleRate))
	}
	if numChannels < 1 || numChannels > MaxNumChannels {
		return newDecodeError(fmt.Sprintf("unsupported channel count: %d", numChannels))
	}
	return nil
}
