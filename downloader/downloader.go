package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const UserAgent = "stationgraph/1.0"

// The response body exceeded GetOptions.MaxSize.
var ErrTooLarge = errors.New("response too large")

type GetOptions struct {
	// Responses larger than this fail with ErrTooLarge. 0 means no
	// limit.
	MaxSize int

	Timeout time.Duration

	// Serve from and store in the cache, if the Downloader has one.
	// A CacheTTL of 0 keeps entries forever.
	Cache    bool
	CacheTTL time.Duration
}

// Fetches a URL, optionally through a cache.
type Downloader interface {
	Get(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)
}

// What the caching Downloaders call on a miss.
type FetchFunc func(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)

// Returned when the server answers with anything but 200.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.StatusCode)
}

// Status code of a *StatusError in err's chain, or 0.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// Plain GET, no caching. Headers are sent as given, plus a User-Agent
// unless one is set.
func HTTPGet(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	client := &http.Client{
		Timeout: options.Timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	var reader io.Reader = resp.Body
	if options.MaxSize > 0 {
		reader = io.LimitReader(resp.Body, int64(options.MaxSize)+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if options.MaxSize > 0 && len(body) > options.MaxSize {
		return nil, fmt.Errorf("%s: %w (limit %d bytes)", url, ErrTooLarge, options.MaxSize)
	}

	return body, nil
}

// Plain HTTP, no caching.
type Direct struct{}

func (Direct) Get(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	return HTTPGet(ctx, url, headers, options)
}
