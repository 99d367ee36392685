package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.False(t, cfg.IsProd())
	assert.Equal(t, ":6380", cfg.RESP.Addr)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 2, cfg.Expiry.Workers)
	assert.Equal(t, "versioned", cfg.Expiry.Policy)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.HTTP.CORSAllowedOrigins)
	assert.Equal(t, int64(1<<20), cfg.HTTP.MaxBodyBytes)
	assert.Len(t, cfg.Options(), 8)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RKV_ENV", "prod")
	t.Setenv("RKV_RESP_ADDR", "127.0.0.1:7000")
	t.Setenv("RKV_RESP_PASSWORD", "secret")
	t.Setenv("RKV_HTTP_ADDR", "")
	t.Setenv("RKV_EXPIRY_WORKERS", "4")
	t.Setenv("RKV_EXPIRY_POLICY", "blind")
	t.Setenv("RKV_RATE_LIMIT_RPM", "120")
	t.Setenv("RKV_CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("RKV_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("RKV_HTTP_MAX_BODY", "64 KB")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProd())
	assert.Equal(t, "127.0.0.1:7000", cfg.RESP.Addr)
	assert.Equal(t, "secret", cfg.RESP.Password)
	assert.Equal(t, "", cfg.HTTP.Addr)
	assert.Equal(t, 4, cfg.Expiry.Workers)
	assert.Equal(t, "blind", cfg.Expiry.Policy)
	assert.Equal(t, 120, cfg.HTTP.RateLimitRPM)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.HTTP.CORSAllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, int64(64000), cfg.HTTP.MaxBodyBytes)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad env", map[string]string{"RKV_ENV": "staging"}},
		{"no listeners", map[string]string{"RKV_RESP_ADDR": "", "RKV_HTTP_ADDR": ""}},
		{"zero workers", map[string]string{"RKV_EXPIRY_WORKERS": "0"}},
		{"too many workers", map[string]string{"RKV_EXPIRY_WORKERS": "17"}},
		{"unknown policy", map[string]string{"RKV_EXPIRY_POLICY": "eager"}},
		{"negative rate limit", map[string]string{"RKV_RATE_LIMIT_RPM": "-1"}},
		{"zero shutdown timeout", map[string]string{"RKV_SHUTDOWN_TIMEOUT": "0s"}},
		{"unparseable body size", map[string]string{"RKV_HTTP_MAX_BODY": "lots"}},
		{"zero body size", map[string]string{"RKV_HTTP_MAX_BODY": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestLoadMalformedDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RKV_ENV=dev\nthis line has no separator\n"), 0o600))
	t.Chdir(dir)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config: .env")
}
