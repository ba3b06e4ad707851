package conf

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

const appDirName = "birdwatch"

// configSearchPaths lists the directories searched for config.yaml. If one
// of them already holds the file only that directory is returned.
func configSearchPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	paths := []string{".", filepath.Join(home, ".config", appDirName), filepath.Join("/etc", appDirName)}
	if runtime.GOOS == "windows" {
		paths = []string{".", filepath.Join(home, "AppData", "Roaming", appDirName)}
	}

	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(p, "config.yaml")); err == nil {
			return []string{p}, nil
		}
	}
	return paths, nil
}

func ffmpegBinaryName() string {
	if runtime.GOOS == "windows" {
		return "ffmpeg.exe"
	}
	return "ffmpeg"
}

// resolveFfmpegPath replaces audio.ffmpegpath with a usable binary, or
// clears it so uploads are limited to the built-in WAV and FLAC decoders.
func resolveFfmpegPath(s *Settings) {
	configured := s.Audio.FfmpegPath
	if configured != "" {
		if info, err := os.Stat(configured); err == nil && !info.IsDir() {
			return
		}
		GetLogger().Warn("configured ffmpeg not found, checking PATH",
			logger.String("configured_path", configured))
	}

	found, err := exec.LookPath(ffmpegBinaryName())
	if err != nil {
		GetLogger().Info("ffmpeg not available, only WAV and FLAC uploads can be decoded")
		s.Audio.FfmpegPath = ""
		return
	}
	s.Audio.FfmpegPath = found
}
