package identify

import (
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// ScratchFile is a request-unique temporary file. Remove may be called any
// number of times from any goroutine.
type ScratchFile struct {
	path string
	once sync.Once
}

// NewScratchFile creates an empty file named birdwatch-*.wav in dir, or in
// the system temp directory when dir is empty.
func NewScratchFile(dir string) (*ScratchFile, error) {
	f, err := os.CreateTemp(dir, "birdwatch-*.wav")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return &ScratchFile{path: path}, nil
}

// Path returns the file location.
func (s *ScratchFile) Path() string {
	return s.path
}

// Remove deletes the file.
func (s *ScratchFile) Remove() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			GetLogger().Warn("failed to remove scratch file",
				logger.String("path", s.path),
				logger.Error(err))
		}
	})
}
