package quote

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/bmcnabb/tickerwatch/internal/common"
	"github.com/bmcnabb/tickerwatch/internal/models"
)

const shardCount = 16

// Entry is one cached quote with its write timestamp and the per-key retry
// debounce marker.
type Entry struct {
	Quote         models.Quote
	StoredAt      time.Time
	NoRetryBefore time.Time
}

// Cache holds the last known good quote per symbol. It is owned by the
// service instance, not a package global; the entry map is key-sharded so
// unrelated symbols' reads and writes never serialize on one lock.
//
// Freshness depends on the cached entry's own market-closed flag:
// closed-market data barely changes so it lives far longer than live data.
type Cache struct {
	shards    [shardCount]cacheShard
	openTTL   time.Duration
	closedTTL time.Duration

	// maxPerShard bounds each shard; 0 means unbounded. On overflow the
	// oldest entry in the shard is dropped.
	maxPerShard int

	now func() time.Time
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[models.SymbolKey]*Entry
}

// CacheOption configures the cache.
type CacheOption func(*Cache)

// WithMaxEntries bounds the total cache size (approximately; the bound is
// applied per shard).
func WithMaxEntries(max int) CacheOption {
	return func(c *Cache) {
		if max > 0 {
			c.maxPerShard = (max + shardCount - 1) / shardCount
		}
	}
}

// WithClock injects a clock for testing.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a quote cache with the given freshness windows.
func NewCache(openTTL, closedTTL time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		openTTL:   openTTL,
		closedTTL: closedTTL,
		now:       time.Now,
	}
	for i := range c.shards {
		c.shards[i].entries = make(map[models.SymbolKey]*Entry)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) shard(key models.SymbolKey) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(key.Ticker))
	h.Write([]byte{'.'})
	h.Write([]byte(key.Market))
	return &c.shards[h.Sum32()%shardCount]
}

// Get returns the entry for a key, fresh or expired, so callers can use
// expired entries on the degraded path. The second return reports presence,
// not freshness.
func (c *Cache) Get(key models.SymbolKey) (*Entry, bool) {
	s := c.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// Fresh reports whether an entry is within its freshness window. The window
// is chosen by the cached quote's own market-closed flag.
func (c *Cache) Fresh(e *Entry) bool {
	if e == nil {
		return false
	}
	ttl := c.openTTL
	if e.Quote.MarketClosed {
		ttl = c.closedTTL
	}
	return common.IsFreshAt(e.StoredAt, ttl, c.now())
}

// Put stores a quote, unconditionally overwriting any prior entry — the
// latest successful fetch wins. Any retry debounce on the key is cleared.
func (c *Cache) Put(key models.SymbolKey, quote models.Quote) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &Entry{Quote: quote, StoredAt: c.now()}

	if c.maxPerShard > 0 && len(s.entries) > c.maxPerShard {
		var oldestKey models.SymbolKey
		var oldest time.Time
		first := true
		for k, e := range s.entries {
			if first || e.StoredAt.Before(oldest) {
				oldestKey, oldest, first = k, e.StoredAt, false
			}
		}
		if oldestKey != key {
			delete(s.entries, oldestKey)
		}
	}
}

// Debounce marks a key as not-to-be-retried until the given time. It is
// explicit per-key state, set by the service after a failed fetch, so a
// burst of requests for a dead symbol does not hammer the upstream.
func (c *Cache) Debounce(key models.SymbolKey, until time.Time) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &Entry{}
		s.entries[key] = e
	}
	e.NoRetryBefore = until
}

// RetryAllowed reports whether a fetch for the key is permitted now.
func (c *Cache) RetryAllowed(key models.SymbolKey) bool {
	s := c.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return true
	}
	return !c.now().Before(e.NoRetryBefore)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		c.shards[i].mu.RLock()
		n += len(c.shards[i].entries)
		c.shards[i].mu.RUnlock()
	}
	return n
}
