package service

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultURLCacheSize = 10000

type cachedURL struct {
	url       string
	expiresAt time.Time
	evictAt   time.Time
}

// URLCacheConfig bounds the signed URL cache. TTL caps how long any entry may
// live in wall-clock time; entries also leave Skew before their URL expires.
type URLCacheConfig struct {
	Size int
	TTL  time.Duration
	Skew time.Duration
}

// URLCache remembers signed URLs until shortly before they expire, keeping
// at most Size entries with least recently used eviction.
type URLCache struct {
	lru  *expirable.LRU[string, cachedURL]
	skew time.Duration
	now  func() time.Time
}

func NewURLCache(cfg URLCacheConfig, now func() time.Time) *URLCache {
	if now == nil {
		now = time.Now
	}
	if cfg.Size <= 0 {
		cfg.Size = defaultURLCacheSize
	}
	if cfg.Skew < 0 {
		cfg.Skew = 0
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &URLCache{
		lru:  expirable.NewLRU[string, cachedURL](cfg.Size, nil, cfg.TTL),
		skew: cfg.Skew,
		now:  now,
	}
}

func urlCacheKey(storagePath, disposition string) string {
	return storagePath + "|" + disposition
}

// Get returns a cached URL for the storage path and disposition while it is still fresh.
func (c *URLCache) Get(storagePath, disposition string) (string, time.Time, bool) {
	key := urlCacheKey(storagePath, disposition)
	entry, ok := c.lru.Get(key)
	if !ok {
		return "", time.Time{}, false
	}
	if !c.now().Before(entry.evictAt) {
		c.lru.Remove(key)
		return "", time.Time{}, false
	}
	return entry.url, entry.expiresAt, true
}

// Put stores url unless it would already be stale.
func (c *URLCache) Put(storagePath, disposition, url string, expiresAt time.Time) {
	evictAt := expiresAt.Add(-c.skew)
	if !c.now().Before(evictAt) {
		return
	}
	c.lru.Add(urlCacheKey(storagePath, disposition), cachedURL{url: url, expiresAt: expiresAt, evictAt: evictAt})
}

// Forget drops every entry for storagePath.
func (c *URLCache) Forget(storagePath string) {
	prefix := storagePath + "|"
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

// Clear empties the cache.
func (c *URLCache) Clear() {
	c.lru.Purge()
}

// Len reports the number of entries held.
func (c *URLCache) Len() int {
	return c.lru.Len()
}
