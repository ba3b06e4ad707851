// Package api provides the HTTP boundary of birdwatch: the species
// identification endpoint, the content catalog routes and the operational
// endpoints.
package api

import (
	"fmt"
	"net"
	"time"

	"github.com/labstack/gommon/bytes"

	"github.com/birdwatch-app/birdwatch-go/internal/conf"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultPort            = "8000"
	DefaultMaxUpload       = "20M"
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRateBurst       = 5
)

// Config holds the HTTP server configuration.
type Config struct {
	Host string // empty binds all interfaces
	Port string

	MaxUpload string  // byte size string, e.g. "20M"
	RateLimit float64 // analyze requests per second for the whole process, 0 disables
	Burst     int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Debug bool

	maxUploadBytes int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            DefaultPort,
		MaxUpload:       DefaultMaxUpload,
		Burst:           DefaultRateBurst,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	ws := settings.WebServer
	if ws.Port != "" {
		cfg.Port = ws.Port
	}
	if ws.MaxUpload != "" {
		cfg.MaxUpload = ws.MaxUpload
	}
	cfg.RateLimit = ws.RateLimit
	if ws.Burst > 0 {
		cfg.Burst = ws.Burst
	}
	cfg.Debug = ws.Debug || settings.Debug
	return cfg
}

// Validate checks the configuration and resolves the upload limit.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	limit, err := bytes.Parse(c.MaxUpload)
	if err != nil {
		return fmt.Errorf("invalid upload limit %q: %w", c.MaxUpload, err)
	}
	if limit <= 0 {
		return fmt.Errorf("upload limit must be positive, got %q", c.MaxUpload)
	}
	c.maxUploadBytes = limit
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.RateLimit > 0 && c.Burst < 1 {
		c.Burst = 1
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// MaxUploadBytes returns the parsed upload limit. Valid after Validate.
func (c *Config) MaxUploadBytes() int64 {
	return c.maxUploadBytes
}
