package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Caches responses in Redis, so that several crawl runs (or several
// machines) share what was already fetched.
type Redis struct {
	client *redis.Client
	prefix string
	logger *slog.Logger

	// Fetches on cache miss. Defaults to HTTPGet.
	Fetch FetchFunc
}

func NewRedis(addr, password string, db int, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisWithClient(client, logger), nil
}

func NewRedisWithClient(client *redis.Client, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client: client,
		prefix: "stationgraph:dl:",
		logger: logger.With("component", "redis_cache"),
		Fetch:  HTTPGet,
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// URLs can be long and contain anything. Keys are hashed.
func (r *Redis) key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return r.prefix + hex.EncodeToString(sum[:])
}

func (r *Redis) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if options.Cache {
		val, err := r.client.Get(ctx, r.key(url)).Bytes()
		switch {
		case err == redis.Nil:
			r.logger.Debug("cache miss", "url", url)
		case err != nil:
			// A broken cache shouldn't break the crawl.
			r.logger.Warn("cache get failed", "url", url, "error", err)
		default:
			r.logger.Debug("cache hit", "url", url, "size_bytes", len(val))
			return val, nil
		}
	}

	body, err := r.Fetch(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache {
		err := r.client.Set(ctx, r.key(url), body, options.CacheTTL).Err()
		if err != nil {
			r.logger.Warn("cache set failed", "url", url, "error", err)
		}
	}

	return body, nil
}
