package rediskv

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/raniellyferreira/redis-inmemory-kv/httpapi"
	"github.com/raniellyferreira/redis-inmemory-kv/lua"
	"github.com/raniellyferreira/redis-inmemory-kv/storage"
)

// config holds the configuration for a Store
type config struct {
	// Expiry scheduler
	expiryWorkers int
	expiryPolicy  storage.ExpiryPolicy

	// RESP server settings, an empty address disables the listener
	serverAddr     string
	serverPassword string
	idleTimeout    *time.Duration

	// HTTP server settings, an empty address disables the listener
	httpAddr       string
	rateLimitRPM   int
	corsOrigins    []string
	maxBodySize    int64
	metricsHandler http.Handler

	// Scripting
	scriptTimeout time.Duration

	// Observability
	logger  *zap.Logger
	metrics MetricsCollector
}

// defaultConfig returns a configuration with sensible defaults
func defaultConfig() *config {
	return &config{
		expiryWorkers: storage.ExpiryConfigDefault.Workers,
		expiryPolicy:  storage.ExpiryConfigDefault.Policy,
		maxBodySize:   httpapi.DefaultMaxBodySize,
		scriptTimeout: lua.DefaultTimeout,
		logger:        zap.NewNop(),
	}
}

// Option represents a configuration option for a Store
type Option func(*config) error

func invalid(option string) error {
	return &ConfigError{Option: option, Err: ErrInvalidConfig}
}

// WithLogger sets the logger shared by every component
//
// Example:
//
//	logger, _ := zap.NewProduction()
//	WithLogger(logger)
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return invalid("logger")
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics enables metrics collection with the provided collector
func WithMetrics(collector MetricsCollector) Option {
	return func(c *config) error {
		c.metrics = collector
		return nil
	}
}

// WithExpiryWorkers sets the number of expiry workers (1-16, default 2)
//
// Example:
//
//	WithExpiryWorkers(4)
func WithExpiryWorkers(n int) Option {
	return func(c *config) error {
		if n < 1 || n > storage.MaxExpiryWorkers {
			return invalid("expiry workers")
		}
		c.expiryWorkers = n
		return nil
	}
}

// WithExpiryPolicy selects how a pending expiration treats a key that was
// written again before it fired
//
// Example:
//
//	WithExpiryPolicy(storage.ExpiryBlind)
func WithExpiryPolicy(policy storage.ExpiryPolicy) Option {
	return func(c *config) error {
		switch policy {
		case storage.ExpiryVersioned, storage.ExpiryBlind:
			c.expiryPolicy = policy
			return nil
		default:
			return invalid("expiry policy")
		}
	}
}

// WithServerAddr sets the RESP listen address. Use ":0" for a random port.
//
// Example:
//
//	WithServerAddr(":6380")
func WithServerAddr(addr string) Option {
	return func(c *config) error {
		c.serverAddr = addr
		return nil
	}
}

// WithServerPassword sets the password clients must send with AUTH
func WithServerPassword(password string) Option {
	return func(c *config) error {
		c.serverPassword = password
		return nil
	}
}

// WithIdleTimeout closes RESP connections idle for longer than d.
// Zero disables the timeout, the default is server.DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d < 0 {
			return invalid("idle timeout")
		}
		c.idleTimeout = &d
		return nil
	}
}

// WithHTTPAddr sets the HTTP listen address
//
// Example:
//
//	WithHTTPAddr(":8080")
func WithHTTPAddr(addr string) Option {
	return func(c *config) error {
		c.httpAddr = addr
		return nil
	}
}

// WithRateLimit limits HTTP requests per minute. Zero disables the limiter.
func WithRateLimit(rpm int) Option {
	return func(c *config) error {
		if rpm < 0 {
			return invalid("rate limit")
		}
		c.rateLimitRPM = rpm
		return nil
	}
}

// WithCORSOrigins sets the origins allowed to call the HTTP API
func WithCORSOrigins(origins []string) Option {
	return func(c *config) error {
		c.corsOrigins = append([]string(nil), origins...)
		return nil
	}
}

// WithMaxBodySize bounds HTTP request bodies and RESP bulk strings in
// bytes (default 1 MiB)
func WithMaxBodySize(n int64) Option {
	return func(c *config) error {
		if n <= 0 {
			return invalid("max body size")
		}
		c.maxBodySize = n
		return nil
	}
}

// WithMetricsHandler mounts h at GET /metrics on the HTTP API
func WithMetricsHandler(h http.Handler) Option {
	return func(c *config) error {
		c.metricsHandler = h
		return nil
	}
}

// WithScriptTimeout bounds the run time of a single Lua script
func WithScriptTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return invalid("script timeout")
		}
		c.scriptTimeout = d
		return nil
	}
}
