package myaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"os/exec"
	"strconv"
	"strings"

	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// ffmpeg output format for decoded uploads
const (
	ffmpegSampleRate  = 48000
	ffmpegNumChannels = 1
	ffmpegBitDepth    = 16
)

// maxStderrDetails bounds the ffmpeg diagnostics echoed back to clients.
const maxStderrDetails = 512

// buildFFmpegDecodeArgs reads any container from stdin and writes raw
// little-endian 16-bit PCM to stdout.
func buildFFmpegDecodeArgs() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(ffmpegNumChannels),
		"-ar", strconv.Itoa(ffmpegSampleRate),
		"pipe:1",
	}
}

func decodeWithFFmpeg(ctx context.Context, ffmpegPath string, data []byte) (*Clip, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, buildFFmpegDecodeArgs()...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		details := strings.TrimSpace(stderr.String())
		if len(details) > maxStderrDetails {
			details = details[:maxStderrDetails]
		}
		if details == "" {
			details = err.Error()
		}
		GetLogger().Debug("ffmpeg decode failed",
			logger.String("ffmpeg", ffmpegPath),
			logger.Error(err))
		return nil, newDecodeError(details)
	}

	return &Clip{
		SampleRate:  ffmpegSampleRate,
		NumChannels: ffmpegNumChannels,
		BitDepth:    ffmpegBitDepth,
		Samples:     s16leToInts(stdout.Bytes()),
		Format:      FormatFFmpeg,
	}, nil
}

// s16leToInts converts raw little-endian 16-bit PCM into samples.
func s16leToInts(pcm []byte) []int {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return samples
}

