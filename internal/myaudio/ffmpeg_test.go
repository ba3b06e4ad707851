package myaudio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestS16leToInts(t *testing.T) {
	t.Parallel()

	pcm := []byte{
		0x00, 0x80, // -32768
		0xff, 0xff, // -1
		0x01, 0x00, // 1
		0xff, 0x7f, // 32767
		0x38, 0xff, // -200
		0x2a, // dangling byte
	}
	assert.Equal(t, []int{-32768, -1, 1, 32767, -200}, s16leToInts(pcm))
	assert.Empty(t, s16leToInts(nil))
}

func TestBuildFFmpegDecodeArgs(t *testing.T) {
	t.Parallel()

	args := buildFFmpegDecodeArgs()
	assert.Subset(t, args, []string{"-i", "pipe:0", "-f", "s16le", "pipe:1"})
	assert.Contains(t, args, "48000")
}
