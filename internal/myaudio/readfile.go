package myaudio

import (
	"fmt"
	"os"
)

// ReadAudioFile decodes a WAV or FLAC file from disk.
func ReadAudioFile(path string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading audio file: %w", err)
	}
	return Decode(data)
}
