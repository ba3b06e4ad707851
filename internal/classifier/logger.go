package classifier

import "github.com/birdwatch-app/birdwatch-go/internal/logger"

// GetLogger returns the classifier module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("classifier")
}
