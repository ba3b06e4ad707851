// Package observability wires the Prometheus registry and its HTTP endpoint.
package observability

import "github.com/birdwatch-app/birdwatch-go/internal/logger"

var log = logger.Global().Module("observability")
