package detectorclient

import "github.com/birdwatch-app/birdwatch-go/internal/logger"

// GetLogger returns the detectorclient module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("detectorclient")
}
