package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"tsde.dev/stationgraph"
	"tsde.dev/stationgraph/config"
	"tsde.dev/stationgraph/downloader"
	"tsde.dev/stationgraph/storage"
	"tsde.dev/stationgraph/timetable"
)

var rootCmd = &cobra.Command{
	Use:               "stationgraph",
	Short:             "German rail station graph tool",
	Long:              "Resolves station identifiers, crawls the DB Timetables API and analyses the resulting station graph",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "", "Log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger = newLogger(os.Stderr, cfg.Level())
	slog.SetDefault(logger)
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

type closer func() error

// Opens the configured snapshot storage.
func openStorage(c config.StorageConfig) (storage.Storage, closer, error) {
	switch c.Backend {
	case "memory":
		return storage.NewMemoryStorage(), func() error { return nil }, nil
	case "sqlite":
		s, err := storage.NewSQLiteStorage(storage.SQLiteConfig{OnDisk: true, Directory: c.Directory})
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite storage: %w", err)
		}
		return s, s.Close, nil
	case "postgres":
		s, err := storage.NewPSQLStorage(c.DSN, false)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres storage: %w", err)
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend '%s'", c.Backend)
}

func openManager() (*stationgraph.Manager, closer, error) {
	s, closeStorage, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, nil, err
	}

	m := stationgraph.NewManager(s, logger)
	m.Resolver.Threshold = cfg.Resolver.Threshold
	m.Resolver.Overrides = cfg.Resolver.Overrides
	return m, closeStorage, nil
}

// Builds the response cache in front of the API.
func newDownloader(c config.CacheConfig) (downloader.Downloader, closer, error) {
	noop := func() error { return nil }
	switch c.Backend {
	case "none":
		return downloader.Direct{}, noop, nil
	case "memory":
		return downloader.NewMemory(), noop, nil
	case "file":
		fs, err := downloader.NewFilesystem(c.Path, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating file cache: %w", err)
		}
		return fs, noop, nil
	case "redis":
		r, err := downloader.NewRedis(c.RedisAddr, c.RedisPassword, c.RedisDB, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating redis cache: %w", err)
		}
		return r, r.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend '%s'", c.Backend)
}

func newClient() (*timetable.Client, closer, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, nil, err
	}

	dl, closeCache, err := newDownloader(cfg.Cache)
	if err != nil {
		return nil, nil, err
	}

	client := timetable.NewClient(timetable.Credentials{
		ClientID: cfg.API.ClientID,
		APIKey:   cfg.API.APIKey,
	}, logger)
	client.BaseURL = cfg.API.BaseURL
	client.Timeout = cfg.API.Timeout
	client.MaxRetries = cfg.API.MaxRetries
	client.Downloader = dl
	client.Cache = cfg.Cache.Backend != "none"
	client.CacheTTL = cfg.Cache.TTL
	client.InitialBackoff = max(client.InitialBackoff, cfg.API.MinInterval)

	return client, closeCache, nil
}
