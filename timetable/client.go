package timetable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"tsde.dev/stationgraph/downloader"
	"tsde.dev/stationgraph/parse"
)

const (
	DefaultBaseURL    = "https://apis.deutschebahn.com/db-api-marketplace/apis/timetables/v1"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxSize    = 10 << 20 // 10 MB
	DefaultMaxRetries = 3

	HeaderClientID = "DB-Client-Id"
	HeaderAPIKey   = "DB-Api-Key"
)

var (
	// The API rejected our credentials. Retrying won't help.
	ErrUnauthorized = errors.New("unauthorized")

	// The API kept failing (429/5xx) after all retries.
	ErrUnavailable = errors.New("api unavailable")
)

// Credentials for the DB API marketplace.
type Credentials struct {
	ClientID string
	APIKey   string
}

// Client for the DB Timetables API.
type Client struct {
	BaseURL     string
	Credentials Credentials
	Timeout     time.Duration
	MaxSize     int
	MaxRetries  int
	Downloader  downloader.Downloader

	// Response caching, when the Downloader supports it.
	Cache    bool
	CacheTTL time.Duration

	// Backoff between retries. Tests shrink this.
	InitialBackoff time.Duration

	// If set, called before every retry so retries share the caller's
	// rate limit. The first attempt is left to the caller.
	Wait func(ctx context.Context) error

	logger *slog.Logger
}

func NewClient(creds Credentials, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL:        DefaultBaseURL,
		Credentials:    creds,
		Timeout:        DefaultTimeout,
		MaxSize:        DefaultMaxSize,
		MaxRetries:     DefaultMaxRetries,
		Downloader:     downloader.Direct{},
		InitialBackoff: 2 * time.Second,
		logger:         logger.With("component", "timetable_client"),
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		HeaderClientID: c.Credentials.ClientID,
		HeaderAPIKey:   c.Credentials.APIKey,
		"accept":       "application/xml",
	}
}

// Fetches the planned timetable of a station for one hour. Date is
// YYMMdd, hour is HH.
func (c *Client) Plan(ctx context.Context, eva int64, date string, hour string) ([]byte, error) {
	u := fmt.Sprintf(
		"%s/plan/%s/%s/%s",
		strings.TrimRight(c.BaseURL, "/"),
		strconv.FormatInt(eva, 10),
		date,
		hour,
	)
	return c.get(ctx, u)
}

// Looks up a station by name. Returns its EVA number and the name the
// API knows it by.
func (c *Client) LookupStation(ctx context.Context, name string) (int64, string, error) {
	u := fmt.Sprintf(
		"%s/station/%s",
		strings.TrimRight(c.BaseURL, "/"),
		url.PathEscape(name),
	)

	body, err := c.get(ctx, u)
	if err != nil {
		return 0, "", err
	}

	return parse.ParseStationLookup(body)
}

// GETs a URL. 429 and 5xx are retried with exponential backoff; 401
// and 403 become ErrUnauthorized; other errors are returned as is.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialBackoff
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = backoff.WithMaxRetries(b, uint64(max(c.MaxRetries, 0)))
	policy = backoff.WithContext(policy, ctx)

	attempt := 0
	body, err := backoff.RetryNotifyWithData(
		func() ([]byte, error) {
			attempt++
			if attempt > 1 && c.Wait != nil {
				if err := c.Wait(ctx); err != nil {
					return nil, backoff.Permanent(err)
				}
			}

			body, err := c.Downloader.Get(ctx, u, c.headers(), downloader.GetOptions{
				Timeout:  c.Timeout,
				MaxSize:  c.MaxSize,
				Cache:    c.Cache,
				CacheTTL: c.CacheTTL,
			})
			if err == nil {
				return body, nil
			}

			var statusErr *downloader.StatusError
			if !errors.As(err, &statusErr) {
				return nil, backoff.Permanent(err)
			}

			switch {
			case statusErr.StatusCode == http.StatusUnauthorized,
				statusErr.StatusCode == http.StatusForbidden:
				return nil, backoff.Permanent(fmt.Errorf("%w: %w", ErrUnauthorized, err))
			case statusErr.StatusCode == http.StatusTooManyRequests,
				statusErr.StatusCode >= 500:
				return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
			}
			return nil, backoff.Permanent(err)
		},
		policy,
		func(err error, d time.Duration) {
			c.logger.Warn("request failed, backing off", "url", u, "backoff", d, "error", err)
		},
	)
	if err != nil {
		return nil, err
	}

	return body, nil
}
