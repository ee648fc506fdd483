package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Caches responses in a single JSON file, rewritten after every new
// response. Handy for replaying a crawl without spending API quota.
type Filesystem struct {
	Path string

	TimeNow func() time.Time
	Fetch   FetchFunc

	logger  *slog.Logger
	mutex   sync.Mutex
	records map[string]fsRecord
}

// Body is base64 in the file, courtesy of encoding/json.
type fsRecord struct {
	Body        []byte    `json:"body"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

func NewFilesystem(path string, logger *slog.Logger) (*Filesystem, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Filesystem{
		Path:    path,
		TimeNow: time.Now,
		Fetch:   HTTPGet,
		logger:  logger.With("component", "fs_cache"),
		records: map[string]fsRecord{},
	}

	if err := f.load(); err != nil {
		return nil, fmt.Errorf("loading cache %s: %w", path, err)
	}

	return f, nil
}

func (f *Filesystem) lookup(url string, ttl time.Duration) ([]byte, bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	record, found := f.records[url]
	if !found {
		return nil, false
	}
	if ttl > 0 && !record.RetrievedAt.Add(ttl).After(f.TimeNow()) {
		f.logger.Debug("cache expired", "url", url)
		return nil, false
	}
	f.logger.Debug("cache hit", "url", url)
	return record.Body, true
}

func (f *Filesystem) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if options.Cache {
		if body, found := f.lookup(url, options.CacheTTL); found {
			return body, nil
		}
	}

	body, err := f.Fetch(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache {
		f.mutex.Lock()
		defer f.mutex.Unlock()

		f.records[url] = fsRecord{
			Body:        body,
			RetrievedAt: f.TimeNow().UTC(),
		}
		if err := f.save(); err != nil {
			return nil, fmt.Errorf("saving cache: %w", err)
		}
	}

	return body, nil
}

// Number of cached responses, expired ones included.
func (f *Filesystem) Len() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.records)
}

func (f *Filesystem) load() error {
	buf, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading: %w", err)
	}

	if err := json.Unmarshal(buf, &f.records); err != nil {
		return fmt.Errorf("unmarshalling: %w", err)
	}

	return nil
}

// Caller holds the mutex. Writes to a temporary file first so that an
// interrupted crawl can't leave a truncated cache behind.
func (f *Filesystem) save() error {
	buf, err := json.Marshal(f.records)
	if err != nil {
		return fmt.Errorf("marshalling: %w", err)
	}

	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0644); err != nil {
		return fmt.Errorf("writing: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("renaming: %w", err)
	}

	return nil
}
