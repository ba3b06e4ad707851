package speciesinfo

import "github.com/birdwatch-app/birdwatch-go/internal/logger"

// GetLogger returns the speciesinfo module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("speciesinfo")
}
