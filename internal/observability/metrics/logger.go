// Package metrics provides Prometheus collectors for the identification
// service and its integrations.
package metrics

import "github.com/birdwatch-app/birdwatch-go/internal/logger"

var log = logger.Global().Module("metrics")
