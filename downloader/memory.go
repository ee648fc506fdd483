package downloader

import (
	"context"
	"sync"
	"time"
)

// Keeps responses in memory for the lifetime of the process. Only
// successful responses are cached. When MaxEntries is set, expired
// entries are dropped first, then the oldest.
type MemoryDownloader struct {
	MaxEntries int

	TimeNow func() time.Time
	Fetch   FetchFunc

	mutex  sync.Mutex
	cache  map[string]memoryEntry
	hits   int
	misses int
}

type memoryEntry struct {
	data      []byte
	storedAt  time.Time
	expiresAt time.Time
}

func NewMemory() *MemoryDownloader {
	return &MemoryDownloader{
		cache:   map[string]memoryEntry{},
		TimeNow: time.Now,
		Fetch:   HTTPGet,
	}
}

func (e memoryEntry) fresh(now time.Time) bool {
	return e.expiresAt.IsZero() || e.expiresAt.After(now)
}

func (d *MemoryDownloader) lookup(url string) ([]byte, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	entry, found := d.cache[url]
	if found && entry.fresh(d.TimeNow()) {
		d.hits++
		return entry.data, true
	}
	d.misses++
	return nil, false
}

func (d *MemoryDownloader) store(url string, data []byte, ttl time.Duration) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	now := d.TimeNow()
	entry := memoryEntry{data: data, storedAt: now}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	d.cache[url] = entry

	if d.MaxEntries > 0 && len(d.cache) > d.MaxEntries {
		d.evict(now)
	}
}

// Caller holds the mutex.
func (d *MemoryDownloader) evict(now time.Time) {
	for url, entry := range d.cache {
		if !entry.fresh(now) {
			delete(d.cache, url)
		}
	}
	for len(d.cache) > d.MaxEntries {
		oldest := ""
		var oldestAt time.Time
		for url, entry := range d.cache {
			if oldest == "" || entry.storedAt.Before(oldestAt) {
				oldest, oldestAt = url, entry.storedAt
			}
		}
		delete(d.cache, oldest)
	}
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if options.Cache {
		if data, found := d.lookup(url); found {
			return data, nil
		}
	}

	body, err := d.Fetch(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache {
		d.store(url, body, options.CacheTTL)
	}

	return body, nil
}

// Cache hits and misses so far.
func (d *MemoryDownloader) Stats() (hits int, misses int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.hits, d.misses
}

func (d *MemoryDownloader) Len() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.cache)
}
