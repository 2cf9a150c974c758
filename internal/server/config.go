// Package server provides configuration helpers that define runtime defaults
// and validation for the broadcast server.
package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultHost is the interface the server binds to.
	DefaultHost = "localhost"
	// DefaultPort is the port shared by the server and the client.
	DefaultPort = 12345
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
// A Burst of zero or less disables limiting, which is the default.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings.
type Config struct {
	Host            string
	Port            int
	AllowedOrigins  []string
	MaxMessageSize  int64
	RateLimit       RateLimitConfig
	WriteTimeout    time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration
	ShutdownTimeout time.Duration
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() Config {
	return Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		AllowedOrigins: []string{"*"},
		MaxMessageSize: 1 << 20,
		RateLimit: RateLimitConfig{
			RefillInterval: time.Second,
		},
		WriteTimeout:    10 * time.Second,
		PongWait:        60 * time.Second,
		PingInterval:    54 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Addr returns the listen address in host:port form.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate reports configuration values that cannot be sanitized.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 0 and 65535", c.Port)
	}
	return nil
}

// sanitize replaces unset values with defaults. Port 0 is kept so tests can
// bind an ephemeral port.
func (c Config) sanitize() Config {
	def := NewConfig()

	if strings.TrimSpace(c.Host) == "" {
		c.Host = def.Host
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.RateLimit.Burst > 0 && c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.PongWait <= 0 {
		c.PongWait = def.PongWait
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)

	return c
}

// ParseOrigins splits a comma-separated origin list.
func ParseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := parts[:0]
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
