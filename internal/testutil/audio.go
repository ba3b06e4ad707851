// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/birdwatch-app/birdwatch-go/internal/myaudio"
)

// SilenceWAV returns a 16-bit mono WAV of d at rate Hz.
func SilenceWAV(t testing.TB, d time.Duration, rate int) []byte {
	t.Helper()
	return encode(t, make([]int, frames(d, rate)), rate)
}

// ToneWAV returns a 16-bit mono sine of freq Hz at half amplitude.
func ToneWAV(t testing.TB, d time.Duration, rate int, freq float64) []byte {
	t.Helper()
	samples := make([]int, frames(d, rate))
	for i := range samples {
		samples[i] = int(16383 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return encode(t, samples, rate)
}

func frames(d time.Duration, rate int) int {
	return int(int64(rate) * int64(d) / int64(time.Second))
}

func encode(t testing.TB, samples []int, rate int) []byte {
	t.Helper()
	data, err := myaudio.EncodeWAVBytes(&myaudio.Clip{
		SampleRate: rate, NumChannels: 1, BitDepth: 16, Samples: samples,
	})
	require.NoError(t, err)
	return data
}
