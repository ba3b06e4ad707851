package myaudio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM is the WAVE_FORMAT_PCM audio format tag
const wavFormatPCM = 1

// EncodeWAV writes clip to w as PCM WAV with the clip's own format.
func EncodeWAV(w io.WriteSeeker, clip *Clip) error {
	enc := wav.NewEncoder(w, clip.SampleRate, clip.BitDepth, clip.NumChannels, wavFormatPCM)

	buf := &audio.IntBuffer{
		Data:           clip.Samples,
		Format:         &audio.Format{SampleRate: clip.SampleRate, NumChannels: clip.NumChannels},
		SourceBitDepth: clip.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write to WAV encoder: %w", err)
	}

	// Close finalizes the RIFF header sizes
	return enc.Close()
}

// WriteWAV writes clip to a new WAV file at path.
func WriteWAV(path string, clip *Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := EncodeWAV(f, clip); err != nil {
		return errors.Join(err, f.Close())
	}
	return f.Close()
}

// EncodeWAVBytes returns clip encoded as an in-memory WAV file.
func EncodeWAVBytes(clip *Clip) ([]byte, error) {
	sb := &seekableBuffer{}
	if err := EncodeWAV(sb, clip); err != nil {
		return nil, err
	}
	return sb.Bytes(), nil
}

// seekableBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch the header once the data length is known.
type seekableBuffer struct {
	buf []byte
	pos int64
}

func (sb *seekableBuffer) Write(p []byte) (int, error) {
	end := sb.pos + int64(len(p))
	if end > int64(len(sb.buf)) {
		sb.buf = append(sb.buf, make([]byte, end-int64(len(sb.buf)))...)
	}
	copy(sb.buf[sb.pos:], p)
	sb.pos = end
	return len(p), nil
}

func (sb *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = sb.pos + offset
	case io.SeekEnd:
		next = int64(len(sb.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative seek position %d", next)
	}
	sb.pos = next
	return next, nil
}

func (sb *seekableBuffer) Bytes() []byte {
	return bytes.Clone(sb.buf)
}
