package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	rediskv "github.com/raniellyferreira/redis-inmemory-kv"
	"github.com/raniellyferreira/redis-inmemory-kv/storage"
)

// Config is the process configuration read from RKV_* environment variables
type Config struct {
	Env string `mapstructure:"RKV_ENV"`

	RESP   RESPConfig   `mapstructure:",squash"`
	HTTP   HTTPConfig   `mapstructure:",squash"`
	Expiry ExpiryConfig `mapstructure:",squash"`

	ShutdownTimeout time.Duration `mapstructure:"RKV_SHUTDOWN_TIMEOUT"`
}

type RESPConfig struct {
	Addr     string `mapstructure:"RKV_RESP_ADDR"`
	Password string `mapstructure:"RKV_RESP_PASSWORD"`
}

type HTTPConfig struct {
	Addr               string   `mapstructure:"RKV_HTTP_ADDR"`
	RateLimitRPM       int      `mapstructure:"RKV_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"RKV_CORS_ALLOWED_ORIGINS"`
	MaxBody            string   `mapstructure:"RKV_HTTP_MAX_BODY"`

	// Parsed from MaxBody
	MaxBodyBytes int64 `mapstructure:"-"`
}

type ExpiryConfig struct {
	Workers int    `mapstructure:"RKV_EXPIRY_WORKERS"`
	Policy  string `mapstructure:"RKV_EXPIRY_POLICY"`
}

// Load reads .env (when present) and the environment. Variables already
// set in the environment win over .env entries.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := gotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("invalid config: .env: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()
	// An empty RKV_RESP_ADDR or RKV_HTTP_ADDR disables that listener
	v.AllowEmptyEnv(true)

	v.SetDefault("RKV_ENV", "dev")
	v.SetDefault("RKV_RESP_ADDR", ":6380")
	v.SetDefault("RKV_RESP_PASSWORD", "")
	v.SetDefault("RKV_HTTP_ADDR", ":8080")
	v.SetDefault("RKV_RATE_LIMIT_RPM", 0)
	v.SetDefault("RKV_CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("RKV_HTTP_MAX_BODY", "1MiB")
	v.SetDefault("RKV_EXPIRY_WORKERS", storage.ExpiryConfigDefault.Workers)
	v.SetDefault("RKV_EXPIRY_POLICY", storage.ExpiryConfigDefault.Policy.String())
	v.SetDefault("RKV_SHUTDOWN_TIMEOUT", "10s")

	// Comma separated list
	if origins := v.GetString("RKV_CORS_ALLOWED_ORIGINS"); origins != "" {
		v.Set("RKV_CORS_ALLOWED_ORIGINS", splitList(origins))
	} else {
		v.Set("RKV_CORS_ALLOWED_ORIGINS", []string{})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	size, err := humanize.ParseBytes(cfg.HTTP.MaxBody)
	if err != nil {
		return nil, fmt.Errorf("invalid config: RKV_HTTP_MAX_BODY: %w", err)
	}
	cfg.HTTP.MaxBodyBytes = int64(size)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) validate() error {
	switch c.Env {
	case "dev", "prod":
	default:
		return fmt.Errorf("invalid RKV_ENV %q (must be dev or prod)", c.Env)
	}
	if c.RESP.Addr == "" && c.HTTP.Addr == "" {
		return fmt.Errorf("at least one of RKV_RESP_ADDR and RKV_HTTP_ADDR is required")
	}
	if c.Expiry.Workers < 1 || c.Expiry.Workers > storage.MaxExpiryWorkers {
		return fmt.Errorf("invalid RKV_EXPIRY_WORKERS %d (must be 1-%d)", c.Expiry.Workers, storage.MaxExpiryWorkers)
	}
	if _, ok := storage.ParseExpiryPolicy(c.Expiry.Policy); !ok {
		return fmt.Errorf("invalid RKV_EXPIRY_POLICY %q (must be versioned or blind)", c.Expiry.Policy)
	}
	if c.HTTP.RateLimitRPM < 0 {
		return fmt.Errorf("invalid RKV_RATE_LIMIT_RPM %d", c.HTTP.RateLimitRPM)
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("RKV_HTTP_MAX_BODY must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("RKV_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// IsProd reports whether the production environment is selected
func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// Options converts the configuration into store options
func (c *Config) Options() []rediskv.Option {
	policy, _ := storage.ParseExpiryPolicy(c.Expiry.Policy)

	return []rediskv.Option{
		rediskv.WithServerAddr(c.RESP.Addr),
		rediskv.WithServerPassword(c.RESP.Password),
		rediskv.WithHTTPAddr(c.HTTP.Addr),
		rediskv.WithRateLimit(c.HTTP.RateLimitRPM),
		rediskv.WithCORSOrigins(c.HTTP.CORSAllowedOrigins),
		rediskv.WithMaxBodySize(c.HTTP.MaxBodyBytes),
		rediskv.WithExpiryWorkers(c.Expiry.Workers),
		rediskv.WithExpiryPolicy(policy),
	}
}
