// Package config loads the YAML configuration file and the API
// credentials.
//
// Credentials never live in the config file. They are read from the
// environment, after loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvClientID      = "DB_CLIENT_ID"
	EnvAPIKey        = "DB_API_KEY"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvLogLevel      = "LOG_LEVEL"
)

type APIConfig struct {
	BaseURL     string        `yaml:"base_url" validate:"required,url"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	MinInterval time.Duration `yaml:"min_interval" validate:"gte=0"`
	MaxRetries  int           `yaml:"max_retries" validate:"gte=0"`

	ClientID string `yaml:"-"`
	APIKey   string `yaml:"-"`
}

type CrawlConfig struct {
	// YYMMdd and HH of the timetable slice to crawl.
	Date string `yaml:"date" validate:"omitempty,len=6,numeric"`
	Hour string `yaml:"hour" validate:"omitempty,len=2,numeric"`

	SeedName       string `yaml:"seed_name"`
	SeedEVA        int64  `yaml:"seed_eva" validate:"gte=0"`
	MaxQueries     int    `yaml:"max_queries" validate:"gte=0"`
	LookupFallback bool   `yaml:"lookup_fallback"`
}

type ResolverConfig struct {
	// Geo matching radius, in degrees.
	Threshold float64 `yaml:"threshold" validate:"gt=0"`

	// Station id to EVA number, for stations the automatic passes
	// get wrong or can't resolve.
	Overrides map[string]int64 `yaml:"overrides" validate:"dive,keys,required,endkeys,gt=0"`
}

type GraphConfig struct {
	AllowSelfLoops bool `yaml:"allow_self_loops"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend" validate:"oneof=memory sqlite postgres"`
	Directory string `yaml:"directory" validate:"required_if=Backend sqlite"`
	DSN       string `yaml:"dsn" validate:"required_if=Backend postgres"`
}

type CacheConfig struct {
	Backend   string        `yaml:"backend" validate:"oneof=none memory file redis"`
	Path      string        `yaml:"path" validate:"required_if=Backend file"`
	RedisAddr string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisDB   int           `yaml:"redis_db" validate:"gte=0"`
	TTL       time.Duration `yaml:"ttl" validate:"gte=0"`

	RedisPassword string `yaml:"-"`
}

type Config struct {
	API      APIConfig      `yaml:"api"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Resolver ResolverConfig `yaml:"resolver"`
	Graph    GraphConfig    `yaml:"graph"`
	Storage  StorageConfig  `yaml:"storage"`
	Cache    CacheConfig    `yaml:"cache"`
	LogLevel string         `yaml:"log_level" validate:"oneof=debug info warn error"`
}

func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:     "https://apis.deutschebahn.com/db-api-marketplace/apis/timetables/v1",
			Timeout:     30 * time.Second,
			MinInterval: time.Second,
			MaxRetries:  3,
		},
		Crawl: CrawlConfig{
			Hour: "12",
		},
		Resolver: ResolverConfig{
			Threshold: 0.01,
			Overrides: map[string]int64{},
		},
		Storage: StorageConfig{
			Backend:   "sqlite",
			Directory: "data",
		},
		Cache: CacheConfig{
			Backend: "none",
			TTL:     24 * time.Hour,
		},
		LogLevel: "info",
	}
}

// Loads the config file at path on top of the defaults, then the
// environment. An empty path means defaults only. A .env file in the
// working directory is loaded if present; variables already set in
// the environment take precedence over it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
		if cfg.Resolver.Overrides == nil {
			cfg.Resolver.Overrides = map[string]int64{}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.API.ClientID = os.Getenv(EnvClientID)
	c.API.APIKey = os.Getenv(EnvAPIKey)
	c.Cache.RedisPassword = os.Getenv(EnvRedisPassword)
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = strings.ToLower(level)
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Checks that API credentials are present. Only commands talking to
// the API need them.
func (c *Config) RequireCredentials() error {
	missing := []string{}
	if c.API.ClientID == "" {
		missing = append(missing, EnvClientID)
	}
	if c.API.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s must be set", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
