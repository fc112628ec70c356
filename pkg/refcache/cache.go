// Package refcache implements the time-boxed client cache for slowly
// changing reference data (connected integrations, platform status).
//
// Entries are never proactively evicted: staleness is a pure function of
// time, checked lazily on every read against an injectable clock. Concurrent
// reads of the same cold key coalesce into a single underlying fetch.
package refcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vanderheijden86/burnboard/pkg/metrics"
)

// DefaultTTL is the maximum age at which a cached value is still usable
// without refetching.
const DefaultTTL = 5 * time.Minute

// Clock supplies the current time; tests inject a fake.
type Clock func() time.Time

// Entry is a reference-data snapshot with its fetch time.
type Entry[V any] struct {
	Value     V
	FetchedAt time.Time
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithClock replaces the wall clock.
func WithClock[V any](clock Clock) Option[V] {
	return func(c *Cache[V]) {
		c.now = clock
	}
}

// WithTTL overrides the default freshness window.
func WithTTL[V any](ttl time.Duration) Option[V] {
	return func(c *Cache[V]) {
		c.ttl = ttl
	}
}

// Cache is a read-through TTL cache keyed by data kind. The zero value is
// not usable; construct with New.
type Cache[V any] struct {
	ttl time.Duration
	now Clock

	mu      sync.RWMutex
	entries map[string]Entry[V]
	group   singleflight.Group
}

// New creates a cache with the default 5 minute TTL.
func New[V any](opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		ttl:     DefaultTTL,
		now:     time.Now,
		entries: make(map[string]Entry[V]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for kind when fresh; otherwise it performs
// fetch, stores the result with the current time, and returns it. Concurrent
// Gets for the same cold kind share one fetch call.
func (c *Cache[V]) Get(ctx context.Context, kind string, fetch func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Peek(kind); ok {
		metrics.CacheHits.Inc()
		return v, nil
	}
	metrics.CacheMisses.Inc()

	v, err, _ := c.group.Do(kind, func() (any, error) {
		// A concurrent caller may have filled the entry while we waited on
		// the flight group.
		if v, ok := c.Peek(kind); ok {
			return v, nil
		}
		defer metrics.Timer(metrics.RefFetch)()
		v, err := fetch(ctx)
		if err != nil {
			var zero V
			return zero, err
		}
		c.put(kind, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Peek returns the cached value for kind without fetching, and whether it
// was present and fresh.
func (c *Cache[V]) Peek(kind string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[kind]
	if !ok || !c.fresh(e) {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Invalidate forces the next Get for kind to refetch.
func (c *Cache[V]) Invalidate(kind string) {
	c.mu.Lock()
	delete(c.entries, kind)
	c.mu.Unlock()
}

// InvalidateAll drops every entry.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]Entry[V])
	c.mu.Unlock()
}

// Seed stores a value with an explicit fetch time. Used to restore a
// persisted cache payload; a seeded entry older than the TTL is simply
// stale and harmless.
func (c *Cache[V]) Seed(kind string, v V, fetchedAt time.Time) {
	c.mu.Lock()
	c.entries[kind] = Entry[V]{Value: v, FetchedAt: fetchedAt}
	c.mu.Unlock()
}

// FetchedAt returns when kind was last stored, or the zero time.
func (c *Cache[V]) FetchedAt(kind string) time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[kind].FetchedAt
}

func (c *Cache[V]) put(kind string, v V) {
	c.mu.Lock()
	c.entries[kind] = Entry[V]{Value: v, FetchedAt: c.now()}
	c.mu.Unlock()
}

// fresh implements the freshness invariant: an entry is fresh iff
// now − fetchedAt < TTL, strictly.
func (c *Cache[V]) fresh(e Entry[V]) bool {
	return c.now().Sub(e.FetchedAt) < c.ttl
}
