package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsde.dev/stationgraph/config"
)

func writeConfig(t *testing.T, lines ...string) string {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(config.EnvClientID, "")
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvRedisPassword, "")
	t.Setenv(config.EnvLogLevel, "")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, time.Second, cfg.API.MinInterval)
	assert.Equal(t, 0.01, cfg.Resolver.Threshold)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, slog.LevelInfo, cfg.Level())

	assert.Error(t, cfg.RequireCredentials())
}

func TestLoadFile(t *testing.T) {
	t.Setenv(config.EnvClientID, "client")
	t.Setenv(config.EnvAPIKey, "secret")
	t.Setenv(config.EnvRedisPassword, "hunter2")
	t.Setenv(config.EnvLogLevel, "")

	path := writeConfig(t,
		"api:",
		"  timeout: 10s",
		"  min_interval: 1500ms",
		"  max_retries: 5",
		"crawl:",
		"  date: \"230316\"",
		"  hour: \"08\"",
		"  seed_name: Berlin Hbf",
		"  seed_eva: 8011160",
		"  max_queries: 100",
		"  lookup_fallback: true",
		"resolver:",
		"  threshold: 0.02",
		"  overrides:",
		"    \"3729\": 8003693",
		"graph:",
		"  allow_self_loops: true",
		"storage:",
		"  backend: postgres",
		"  dsn: postgres://localhost/stationgraph",
		"cache:",
		"  backend: redis",
		"  redis_addr: localhost:6379",
		"  ttl: 1h",
		"log_level: debug",
	)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	// Untouched keys keep their defaults
	assert.Equal(t, config.Default().API.BaseURL, cfg.API.BaseURL)

	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.API.MinInterval)
	assert.Equal(t, 5, cfg.API.MaxRetries)
	assert.Equal(t, "client", cfg.API.ClientID)
	assert.Equal(t, "secret", cfg.API.APIKey)
	assert.NoError(t, cfg.RequireCredentials())

	assert.Equal(t, config.CrawlConfig{
		Date:           "230316",
		Hour:           "08",
		SeedName:       "Berlin Hbf",
		SeedEVA:        8011160,
		MaxQueries:     100,
		LookupFallback: true,
	}, cfg.Crawl)

	assert.Equal(t, 0.02, cfg.Resolver.Threshold)
	assert.Equal(t, map[string]int64{"3729": 8003693}, cfg.Resolver.Overrides)
	assert.True(t, cfg.Graph.AllowSelfLoops)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "postgres://localhost/stationgraph", cfg.Storage.DSN)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "hunter2", cfg.Cache.RedisPassword)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoadLogLevelFromEnv(t *testing.T) {
	t.Setenv(config.EnvLogLevel, "WARN")

	cfg, err := config.Load(writeConfig(t, "log_level: debug"))
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, cfg.Level())
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv(config.EnvLogLevel, "")

	for _, tc := range []struct {
		name  string
		lines []string
	}{
		{"unknown storage backend", []string{"storage:", "  backend: mongo"}},
		{"postgres without dsn", []string{"storage:", "  backend: postgres"}},
		{"file cache without path", []string{"cache:", "  backend: file"}},
		{"redis cache without address", []string{"cache:", "  backend: redis"}},
		{"bad date", []string{"crawl:", "  date: \"2023-03-16\""}},
		{"bad hour", []string{"crawl:", "  hour: \"8\""}},
		{"zero threshold", []string{"resolver:", "  threshold: 0"}},
		{"negative override", []string{"resolver:", "  overrides:", "    \"3729\": -1"}},
		{"bad base url", []string{"api:", "  base_url: not a url"}},
		{"bad log level", []string{"log_level: loud"}},
		{"malformed yaml", []string{"api: [unterminated"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.lines...))
			assert.Error(t, err)
		})
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
