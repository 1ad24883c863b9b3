package realtime

import (
	"context"
	"sync"
)

// QueryKind names the client-side query a cache entry backs.
type QueryKind string

const (
	QueryMessages  QueryKind = "messages"
	QueryReplies   QueryKind = "replies"
	QueryReactions QueryKind = "reactions"
	QueryPinned    QueryKind = "pinned"
	QueryUnread    QueryKind = "unread"
)

// CacheKey identifies one cache entry: a (conversation, query kind) pair.
type CacheKey struct {
	Conversation string
	Kind         QueryKind
}

// FetchFunc loads the current store state for a cache key during refetch.
type FetchFunc func(ctx context.Context) (interface{}, error)

type cacheEntry struct {
	mu        sync.Mutex
	value     interface{}
	populated bool

	// confirmed holds the last store-backed value while an optimistic write
	// is outstanding, so a remote failure can restore it fully.
	confirmed  interface{}
	optimistic bool
}

// QueryCache owns the last-known state of every client query. Optimistic
// local writes and feed-driven invalidation both serialize through a per-key
// lock, so a slow refetch can never clobber a newer write.
type QueryCache struct {
	mu      sync.Mutex
	entries map[CacheKey]*cacheEntry
}

// NewQueryCache constructs an empty cache.
func NewQueryCache() *QueryCache {
	return &QueryCache{entries: make(map[CacheKey]*cacheEntry)}
}

func (c *QueryCache) entry(key CacheKey) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{}
		c.entries[key] = e
	}
	return e
}

// Get returns the cached value for key, if any.
func (c *QueryCache) Get(key CacheKey) (interface{}, bool) {
	e := c.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.populated {
		return nil, false
	}
	return e.value, true
}

// Invalidate refetches the entry from the store and replaces the cached
// value. The per-key lock is held across the fetch; the feed payload is never
// patched into the cache directly. On fetch failure the entry is cleared
// rather than left stale.
func (c *QueryCache) Invalidate(ctx context.Context, key CacheKey, fetch FetchFunc) error {
	e := c.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if fetch == nil {
		e.value = nil
		e.populated = false
		e.optimistic = false
		return nil
	}

	value, err := fetch(ctx)
	if err != nil {
		e.value = nil
		e.populated = false
		e.optimistic = false
		return err
	}

	e.value = value
	e.populated = true
	// A refetch reflects confirmed store state; any optimistic overlay is
	// superseded by it.
	e.optimistic = false
	e.confirmed = nil
	return nil
}

// SetOptimistic applies a local write ahead of server confirmation. The
// previous value is retained so Rollback can fully restore it.
func (c *QueryCache) SetOptimistic(key CacheKey, value interface{}) {
	e := c.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.optimistic {
		e.confirmed = e.value
		e.optimistic = true
	}
	e.value = value
	e.populated = true
}

// Commit confirms an outstanding optimistic write after the store accepted it.
func (c *QueryCache) Commit(key CacheKey) {
	e := c.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.optimistic = false
	e.confirmed = nil
}

// Rollback reverts an outstanding optimistic write after a remote failure.
// The cache never keeps showing a state the store does not have.
func (c *QueryCache) Rollback(key CacheKey) {
	e := c.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.optimistic {
		return
	}
	e.value = e.confirmed
	e.populated = e.confirmed != nil
	e.optimistic = false
	e.confirmed = nil
}

// Drop removes the entry for key entirely.
func (c *QueryCache) Drop(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
