package myaudio

import "github.com/birdwatch-app/birdwatch-go/internal/logger"

// GetLogger returns the myaudio logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audio")
}
