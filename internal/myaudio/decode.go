package myaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// Decoder turns raw upload bytes into a Clip. FFmpegPath enables the ffmpeg
// fallback for containers other than WAV and FLAC.
type Decoder struct {
	FFmpegPath string
}

// Decode decodes WAV or FLAC data without ffmpeg.
func Decode(data []byte) (*Clip, error) {
	return (&Decoder{}).Decode(context.Background(), data)
}

// Decode sniffs the container and decodes data. All failures are *DecodeError.
func (d *Decoder) Decode(ctx context.Context, data []byte) (clip *Clip, err error) {
	if len(data) == 0 {
		return nil, newDecodeError("empty upload")
	}

	// Third-party decoders index into headers without bounds checks
	defer func() {
		if r := recover(); r != nil {
			clip = nil
			err = newDecodeError(fmt.Sprintf("decoder panic: %v", r))
		}
	}()

	switch {
	case isWAV(data):
		clip, err = decodeWAV(data)
	case isFLAC(data):
		clip, err = decodeFLAC(data)
	case d != nil && d.FFmpegPath != "":
		clip, err = decodeWithFFmpeg(ctx, d.FFmpegPath, data)
	default:
		err = newDecodeError("unrecognized audio container")
	}

	if err != nil {
		var de *DecodeError
		if !stderrors.As(err, &de) {
			err = newDecodeError(err.Error())
		}
		GetLogger().Debug("audio decode failed",
			logger.Int("bytes", len(data)),
			logger.Error(err))
		return nil, err
	}

	if err := validateStreamFormat(clip.SampleRate, clip.NumChannels); err != nil {
		return nil, err
	}
	if clip.Frames() == 0 {
		return nil, newDecodeError("audio stream contains no samples")
	}
	return clip, nil
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func isFLAC(data []byte) bool {
	return len(data) >= 4 && string(data[0:4]) == "fLaC"
}

func decodeWAV(data []byte) (*Clip, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, newDecodeError("invalid WAV file format")
	}

	switch decoder.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, newDecodeError(fmt.Sprintf("unsupported bit depth: %d", decoder.BitDepth))
	}
	if err := validateStreamFormat(int(decoder.SampleRate), int(decoder.NumChans)); err != nil {
		return nil, err
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, newDecodeError(err.Error())
	}

	clip := &Clip{
		SampleRate:  int(decoder.SampleRate),
		NumChannels: int(decoder.NumChans),
		BitDepth:    int(decoder.BitDepth),
		Samples:     buf.Data,
		Format:      FormatWAV,
	}

	// 8-bit WAV is unsigned; widen to signed 16-bit so silence is always zero
	if clip.BitDepth == 8 {
		for i, s := range clip.Samples {
			clip.Samples[i] = (s - 128) << 8
		}
		clip.BitDepth = 16
	}

	// Drop a trailing partial frame left by truncated uploads
	if rem := len(clip.Samples) % clip.NumChannels; rem != 0 {
		clip.Samples = clip.Samples[:len(clip.Samples)-rem]
	}

	return clip, nil
}

func decodeFLAC(data []byte) (*Clip, error) {
	decoder, err := flac.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, newDecodeError(err.Error())
	}

	switch decoder.BitsPerSample {
	case 8, 16, 24:
	default:
		return nil, newDecodeError(fmt.Sprintf("unsupported bit depth: %d", decoder.BitsPerSample))
	}
	if err := validateStreamFormat(decoder.SampleRate, decoder.NChannels); err != nil {
		return nil, err
	}
	bytesPerSample := decoder.BitsPerSample / 8

	// TotalSamples is a header claim; the buffer grows with what actually decodes
	var samples []int
	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newDecodeError(err.Error())
		}

		for i := 0; i+bytesPerSample <= len(frame); i += bytesPerSample {
			var sample int
			switch decoder.BitsPerSample {
			case 8:
				sample = int(int8(frame[i])) << 8
			case 16:
				sample = int(int16(binary.LittleEndian.Uint16(frame[i:])))
			case 24:
				v := int32(frame[i]) | int32(frame[i+1])<<8 | int32(frame[i+2])<<16
				sample = int((v << 8) >> 8) // sign-extend
			}
			samples = append(samples, sample)
		}
	}

	if rem := len(samples) % decoder.NChannels; rem != 0 {
		samples = samples[:len(samples)-rem]
	}

	bitDepth := decoder.BitsPerSample
	if bitDepth == 8 {
		bitDepth = 16
	}

	return &Clip{
		SampleRate:  decoder.SampleRate,
		NumChannels: decoder.NChannels,
		BitDepth:    bitDepth,
		Samples:     samples,
		Format:      FormatFLAC,
	}, nil
}

