package conf

import (
	"sync"

	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the configuration module logger
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("config")
	})
	return serviceLogger
}
