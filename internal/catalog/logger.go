package catalog

import "github.com/birdwatch-app/birdwatch-go/internal/logger"

// GetLogger returns the catalog module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("catalog")
}
