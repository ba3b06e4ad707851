package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/birdwatch-app/birdwatch-go/internal/logger"
	"github.com/birdwatch-app/birdwatch-go/internal/observability"
)

// newRequestID tags each request with an X-Request-Id and carries it in the
// request context so module loggers include it as trace_id.
func newRequestID() echo.MiddlewareFunc {
	return echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
		},
	})
}

// newRequestLogger logs one line per request and feeds the HTTP metrics.
func newRequestLogger(m *observability.Metrics) echo.MiddlewareFunc {
	log := GetLogger()
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:       true,
		LogURI:          true,
		LogMethod:       true,
		LogRoutePath:    true,
		LogLatency:      true,
		LogRemoteIP:     true,
		LogResponseSize: true,
		LogRequestID:    true,
		LogError:        true,
		HandleError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if m != nil {
				path := v.RoutePath
				if path == "" {
					path = "unmatched"
				}
				m.HTTP.RecordRequest(v.Method, path, v.Status, v.Latency, v.ResponseSize)
			}

			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
				logger.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}
			if v.Status >= http.StatusInternalServerError {
				log.Warn("request", fields...)
			} else {
				log.Info("request", fields...)
			}
			return nil
		},
	})
}

// newRateLimiter caps the request rate of a route across all clients.
// A non-positive limit disables it.
func newRateLimiter(limit float64, burst int) echo.MiddlewareFunc {
	if limit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	limiter := rate.NewLimiter(rate.Limit(limit), burst)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !limiter.Allow() {
				GetLogger().Warn("rate limit exceeded",
					logger.String("path", c.Path()),
					logger.String("ip", c.RealIP()))
				return c.JSON(http.StatusTooManyRequests, errorResponse{Error: "Too many requests"})
			}
			return next(c)
		}
	}
}
