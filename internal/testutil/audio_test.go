package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdwatch-app/birdwatch-go/internal/myaudio"
)

func TestFixturesDecode(t *testing.T) {
	clip, err := myaudio.Decode(SilenceWAV(t, 1500*time.Millisecond, 16000))
	require.NoError(t, err)
	assert.Equal(t, 16000, clip.SampleRate)
	assert.Equal(t, 24000, clip.Frames())

	clip, err = myaudio.Decode(ToneWAV(t, time.Second, 8000, 440))
	require.NoError(t, err)
	assert.Equal(t, 8000, clip.Frames())
	assert.NotZero(t, clip.Samples[10])
}
