// Package cache provides the expiring key/value stores used to skip redundant
// network work. Nothing stored here is authoritative: callers must tolerate a
// miss and recompute.
package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval is how often Run evicts expired entries.
const DefaultSweepInterval = 5 * time.Minute

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTL is an in-memory map whose entries expire a fixed duration after Set.
type TTL[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
	now   func() time.Time
}

// NewTTL creates an empty TTL map.
func NewTTL[V any]() *TTL[V] {
	return &TTL[V]{
		items: make(map[string]entry[V]),
		now:   time.Now,
	}
}

// Set stores v under key for ttl.
func (c *TTL[V]) Set(key string, v V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[V]{value: v, expires: c.now().Add(ttl)}
}

// Get returns the value for key. An expired entry is removed and reported
// as a miss, whether or not the sweeper has run.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if c.now().After(e.expires) {
		c.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the key.
		if cur, ok := c.items[key]; ok && c.now().After(cur.expires) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Delete removes key.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of stored entries, expired ones included.
func (c *TTL[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Cleanup evicts every expired entry and returns how many were removed.
func (c *TTL[V]) Cleanup() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.items {
		if now.After(e.expires) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// Run sweeps expired entries every interval until ctx is done.
func (c *TTL[V]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			c.Cleanup()
		}
	}
}
