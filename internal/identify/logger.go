package identify

import (
	"sync"

	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the identification module logger
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("identify")
	})
	return serviceLogger
}
