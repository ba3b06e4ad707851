package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/birdwatch-app/birdwatch-go/internal/buildinfo"
	"github.com/birdwatch-app/birdwatch-go/internal/catalog"
	"github.com/birdwatch-app/birdwatch-go/internal/conf"
	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/identify"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
	"github.com/birdwatch-app/birdwatch-go/internal/observability"
	"github.com/birdwatch-app/birdwatch-go/internal/speciesinfo"
)

// Identifier runs one identification over uploaded audio bytes.
type Identifier interface {
	Identify(ctx context.Context, data []byte) (identify.Result, identify.Trace)
}

// Server is the birdwatch HTTP server.
type Server struct {
	echo       *echo.Echo
	config     *Config
	identifier Identifier
	catalog    *catalog.Store
	species    *speciesinfo.Provider
	metrics    *observability.Metrics
	build      buildinfo.BuildInfo
	startTime  time.Time

	shutdownOnce sync.Once
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithCatalog serves the bird sounds and bird maps collections from store.
func WithCatalog(store *catalog.Store) ServerOption {
	return func(s *Server) { s.catalog = store }
}

// WithSpeciesInfo enables the species summary route.
func WithSpeciesInfo(p *speciesinfo.Provider) ServerOption {
	return func(s *Server) { s.species = p }
}

// WithMetrics records request metrics and exposes /metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithBuildInfo sets the version reported by /health.
func WithBuildInfo(b buildinfo.BuildInfo) ServerOption {
	return func(s *Server) { s.build = b }
}

// WithConfig overrides the configuration derived from settings.
func WithConfig(cfg *Config) ServerOption {
	return func(s *Server) { s.config = cfg }
}

// New creates a server answering identification requests with identifier.
func New(settings *conf.Settings, identifier Identifier, opts ...ServerOption) (*Server, error) {
	if identifier == nil {
		return nil, errors.Newf("identifier is required").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Server{
		config:     ConfigFromSettings(settings),
		identifier: identifier,
		build:      buildinfo.Current(),
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.config.Validate(); err != nil {
		return nil, errors.New(fmt.Errorf("invalid server configuration: %w", err)).
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = s.config.Debug
	s.echo.HTTPErrorHandler = s.handleError

	s.echo.Server.ReadTimeout = s.config.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.WriteTimeout
	s.echo.Server.IdleTimeout = s.config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	GetLogger().Info("HTTP server initialized",
		logger.String("address", s.config.Address()),
		logger.String("max_upload", s.config.MaxUpload),
		logger.Float64("rate_limit", s.config.RateLimit),
		logger.Bool("catalog", s.catalog != nil),
		logger.Bool("species_info", s.species != nil),
		logger.Bool("metrics", s.metrics != nil))

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())
	s.echo.Use(newRequestID())
	s.echo.Use(newRequestLogger(s.metrics))
	s.echo.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
	}))
	s.echo.Use(echomw.BodyLimit(s.config.MaxUpload))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/", s.welcome)
	s.echo.GET("/health", s.healthCheck)

	s.echo.POST("/analyze-bird", s.analyzeBird, newRateLimiter(s.config.RateLimit, s.config.Burst))

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
	if s.catalog != nil {
		s.registerCatalogRoutes()
	}
	if s.species != nil {
		s.echo.GET("/species/:name", s.speciesInfo)
	}
}

// handleError renders errors as {"error": "..."}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		message = fmt.Sprint(he.Message)
	} else {
		GetLogger().Error("unhandled request error",
			logger.String("path", c.Path()),
			logger.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, errorResponse{Error: message})
	}
	if err != nil {
		GetLogger().Debug("failed to write error response", logger.Error(err))
	}
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start begins serving in a background goroutine and returns immediately.
func (s *Server) Start() {
	go func() {
		if err := s.startBlocking(); err != nil {
			GetLogger().Error("server error", logger.Error(err))
		}
	}()
	GetLogger().Info("HTTP server starting", logger.String("address", s.config.Address()))
}

func (s *Server) startBlocking() error {
	if err := s.echo.Start(s.config.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(fmt.Errorf("server error: %w", err)).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("address", s.config.Address()).
			Build()
	}
	return nil
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- s.startBlocking() }()
	GetLogger().Info("HTTP server starting", logger.String("address", s.config.Address()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		GetLogger().Info("shutdown signal received")
	}
	return s.Shutdown()
}

// Shutdown gracefully stops the server. Safe to call more than once.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if shutdownErr := s.echo.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("shutdown error: %w", shutdownErr)
			return
		}
		GetLogger().Info("server shutdown complete")
	})
	return err
}
