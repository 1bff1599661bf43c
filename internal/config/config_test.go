package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CONFIG", "SERVER_ADDRESS", "BASE_URL", "FILE_STORAGE_PATH", "DATABASE_DSN",
	"GRPC_ADDRESS", "JWT_SECRET", "REDIS_ADDR", "LOG_LEVEL", "QR_SERVICE_URL",
	"RATE_LIMIT", "CLICK_BATCH_SIZE", "LINK_TTL", "CLICK_FLUSH_INTERVAL",
	"SWEEP_INTERVAL", "SHUTDOWN_TIMEOUT", "EXPIRED_RETENTION", "TRUSTED_PROXIES",
}

// withArgs resets the global flag set and clears the environment for one test.
func withArgs(t *testing.T, args ...string) {
	t.Helper()

	oldArgs := os.Args
	oldFlags := flag.CommandLine
	t.Cleanup(func() {
		os.Args = oldArgs
		flag.CommandLine = oldFlags
	})

	for _, key := range envKeys {
		t.Setenv(key, "")
	}

	flag.CommandLine = flag.NewFlagSet("cmd", flag.ContinueOnError)
	os.Args = append([]string{"cmd"}, args...)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewConfigDefault(t *testing.T) {
	withArgs(t)

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, 720*time.Hour, cfg.LinkTTL)
	assert.Equal(t, 60, cfg.RateLimit)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 100, cfg.ClickBatchSize)
	assert.Equal(t, 7*24*time.Hour, cfg.ExpiredRetention)
	assert.Empty(t, cfg.TrustedProxies)
	assert.Empty(t, cfg.GRPCAddress)
	assert.Empty(t, cfg.DatabaseDSN)
}

func TestNewConfigWithArgs(t *testing.T) {
	withArgs(t, "-a", "localhost:8888", "-b", "http://localhost:8000", "-t", "48h", "-r", "5", "-g", ":9090", "-redis", "localhost:6379")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "localhost:8888", cfg.ServerAddress)
	assert.Equal(t, "http://localhost:8000", cfg.BaseURL)
	assert.Equal(t, 48*time.Hour, cfg.LinkTTL)
	assert.Equal(t, 5, cfg.RateLimit)
	assert.Equal(t, ":9090", cfg.GRPCAddress)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestNewConfigWithJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"server_address": "json:8080",
		"base_url": "http://json",
		"link_ttl": "24h",
		"rate_limit": 7,
		"click_batch_size": 10,
		"sweep_interval": "30s"
	}`)
	withArgs(t, "-c", path)

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "json:8080", cfg.ServerAddress)
	assert.Equal(t, "http://json", cfg.BaseURL)
	assert.Equal(t, 24*time.Hour, cfg.LinkTTL)
	assert.Equal(t, 7, cfg.RateLimit)
	assert.Equal(t, 10, cfg.ClickBatchSize)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
}

func TestNewConfigWithYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server_address: yaml:8080
database_dsn: file:links.db
log_level: debug
click_flush_interval: 250ms
`)
	withArgs(t)
	t.Setenv("CONFIG", path)

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "yaml:8080", cfg.ServerAddress)
	assert.Equal(t, "file:links.db", cfg.DatabaseDSN)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.ClickFlushInterval)
}

func TestNewConfigPriority(t *testing.T) {
	path := writeFile(t, "config.json", `{"server_address": "json:8080", "base_url": "http://json", "log_level": "warn"}`)
	withArgs(t, "-c", path, "-a", "flag:8080", "-b", "http://flag")
	t.Setenv("SERVER_ADDRESS", "env:8080")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "env:8080", cfg.ServerAddress, "env beats flag and file")
	assert.Equal(t, "http://flag", cfg.BaseURL, "flag beats file")
	assert.Equal(t, "warn", cfg.LogLevel, "file beats default")
}

func TestNewConfigEnv(t *testing.T) {
	withArgs(t)
	t.Setenv("LINK_TTL", "1h")
	t.Setenv("RATE_LIMIT", "0")
	t.Setenv("DATABASE_DSN", "postgres://localhost/links")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.LinkTTL)
	assert.Equal(t, 0, cfg.RateLimit)
	assert.Equal(t, "postgres://localhost/links", cfg.DatabaseDSN)
}

func TestNewConfigTrustedProxiesAndRetention(t *testing.T) {
	path := writeFile(t, "config.yaml", `
trusted_proxies:
  - 10.0.0.0/8
expired_retention: 48h
`)
	withArgs(t, "-c", path)

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.TrustedProxies)
	assert.Equal(t, 48*time.Hour, cfg.ExpiredRetention)

	withArgs(t, "-c", path, "-trusted-proxies", "127.0.0.1, 192.168.0.0/16")
	cfg, err = NewConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1", "192.168.0.0/16"}, cfg.TrustedProxies, "flag beats file")

	withArgs(t, "-trusted-proxies", "127.0.0.1")
	t.Setenv("TRUSTED_PROXIES", "172.16.0.0/12,,::1")
	t.Setenv("EXPIRED_RETENTION", "1h")
	cfg, err = NewConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"172.16.0.0/12", "::1"}, cfg.TrustedProxies)
	assert.Equal(t, time.Hour, cfg.ExpiredRetention)
}

func TestNewConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T)
	}{
		{
			name: "missing file",
			setup: func(t *testing.T) {
				withArgs(t, "-c", filepath.Join(t.TempDir(), "absent.json"))
			},
		},
		{
			name: "malformed json",
			setup: func(t *testing.T) {
				withArgs(t, "-c", writeFile(t, "bad.json", `{"server_address":`))
			},
		},
		{
			name: "bad duration in file",
			setup: func(t *testing.T) {
				withArgs(t, "-c", writeFile(t, "bad.yml", "link_ttl: forever\n"))
			},
		},
		{
			name: "bad env int",
			setup: func(t *testing.T) {
				withArgs(t)
				t.Setenv("RATE_LIMIT", "many")
			},
		},
		{
			name: "bad env duration",
			setup: func(t *testing.T) {
				withArgs(t)
				t.Setenv("SWEEP_INTERVAL", "often")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup(t)
			_, err := NewConfig()
			assert.Error(t, err)
		})
	}
}
