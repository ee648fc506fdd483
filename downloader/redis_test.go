package downloader

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Set to run the Redis tests against a live server.
const RedisTestAddr = ""

type countingFetch struct {
	calls int
	body  string
}

func (c *countingFetch) fetch(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	c.calls++
	return []byte(c.body), nil
}

func TestRedisDownloader(t *testing.T) {
	if RedisTestAddr == "" {
		t.Skip("RedisTestAddr not set")
	}

	r, err := NewRedis(RedisTestAddr, "", 0, nil)
	require.NoError(t, err)
	defer r.Close()
	r.prefix = "stationgraph:test:" + t.Name() + ":"

	f := &countingFetch{body: "<timetable/>"}
	r.Fetch = f.fetch

	url := "https://example.com/plan/8000046/230316/12"
	defer r.client.Del(context.Background(), r.key(url))

	opts := GetOptions{Cache: true, CacheTTL: time.Minute}
	for i := 0; i < 3; i++ {
		body, err := r.Get(context.Background(), url, nil, opts)
		require.NoError(t, err)
		assert.Equal(t, "<timetable/>", string(body))
	}
	assert.Equal(t, 1, f.calls)

	_, err = r.Get(context.Background(), url, nil, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)
}

// Requests go through even when Redis can't be reached.
func TestRedisDownloaderUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	r := NewRedisWithClient(client, nil)
	defer r.Close()

	f := &countingFetch{body: "body"}
	r.Fetch = f.fetch

	for i := 0; i < 2; i++ {
		body, err := r.Get(context.Background(), "https://example.com/x", nil, GetOptions{Cache: true, CacheTTL: time.Minute})
		require.NoError(t, err)
		assert.Equal(t, "body", string(body))
	}
	assert.Equal(t, 2, f.calls)
}

func TestRedisKey(t *testing.T) {
	r := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), nil)
	defer r.Close()

	a := r.key("https://example.com/plan/1/230316/12")
	b := r.key("https://example.com/plan/2/230316/12")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, r.key("https://example.com/plan/1/230316/12"))
	assert.Equal(t, len("stationgraph:dl:")+64, len(a))
}
