package analysis

import "github.com/birdwatch-app/birdwatch-go/internal/logger"

// GetLogger returns the analysis module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}
