package birdnet

import "github.com/birdwatch-app/birdwatch-go/internal/logger"

// GetLogger returns the birdnet module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("birdnet")
}
