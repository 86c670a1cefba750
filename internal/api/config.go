// Package api provides the HTTP server infrastructure for reviewdash.
// The JSON endpoints live in the v1 subpackage.
package api

import (
	"fmt"
	"net"
	"time"

	"github.com/tphakala/reviewdash/internal/conf"
)

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 5 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	Host string
	Port string

	AllowedOrigins []string // CORS allowed origins, empty disables CORS

	// Timeouts. Sync and ingestion run inside the request, so the write
	// timeout has to cover a full pipeline run.
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	MaxUploadSize int64

	// ServeMetrics exposes /metrics on this server
	ServeMetrics bool
	Debug        bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            "8000",
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		MaxUploadSize:   10 << 20,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	ws := settings.WebServer

	cfg.Host = ws.Host
	if ws.Port != "" {
		cfg.Port = ws.Port
	}
	cfg.AllowedOrigins = ws.CORSOrigins
	if ws.ReadTimeout > 0 {
		cfg.ReadTimeout = ws.ReadTimeout
	}
	if ws.WriteTimeout > 0 {
		cfg.WriteTimeout = ws.WriteTimeout
	}
	if ws.MaxUploadSize > 0 {
		cfg.MaxUploadSize = ws.MaxUploadSize
	}

	// a separate telemetry listener takes /metrics off the API server
	cfg.ServeMetrics = settings.Telemetry.Enabled && settings.Telemetry.Listen == ""
	cfg.Debug = ws.Debug || settings.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// BodyLimit returns the echo body limit string, leaving headroom for the
// multipart envelope around an upload of MaxUploadSize.
func (c *Config) BodyLimit() string {
	const headroom = 1 << 20
	return fmt.Sprintf("%dK", (c.MaxUploadSize+headroom)/1024)
}
