package cache

import (
	"log/slog"
	"sync"
	"time"
)

// TaggedCache is an in-memory key/value cache with per-key TTL and a
// secondary tag index. Any write elsewhere in the system (new post, follow
// change, moderation action) can invalidate exactly the feed pages it
// affects by tag, without knowing the concrete keys.
//
// The cache is a best-effort accelerator: callers must treat a miss and an
// unavailable cache identically and fall through to the authoritative path.
type TaggedCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	tags    map[string]map[string]struct{} // tag -> set of keys
	logger  *slog.Logger
	stop    chan struct{}
}

type entry struct {
	value     any
	tags      []string
	expiresAt time.Time
}

// janitorInterval controls how often expired entries are swept. Reads also
// check expiry, so the sweeper only bounds memory, not staleness.
const janitorInterval = time.Minute

// NewTaggedCache creates a tagged cache and starts its expiry sweeper.
func NewTaggedCache(logger *slog.Logger) *TaggedCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &TaggedCache{
		entries: make(map[string]*entry),
		tags:    make(map[string]map[string]struct{}),
		logger:  logger,
		stop:    make(chan struct{}),
	}
	go c.janitor()
	return c
}

// GetWithTags returns the value stored at key, or (nil, false) on a miss.
// A miss has no side effect beyond lazily dropping an expired entry.
func (c *TaggedCache) GetWithTags(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock: the entry may have been replaced
		// by a fresh Set since the read lock was released.
		if cur, ok := c.entries[key]; ok && time.Now().After(cur.expiresAt) {
			c.removeLocked(key, cur)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// SetWithTags stores value at key with a TTL and registers the key under
// every tag. An existing entry at key is overwritten and unregistered from
// its old tags. The write is a single atomic publish: a concurrent
// GetWithTags observes either the old value or the new one, never a
// partially tagged state.
func (c *TaggedCache) SetWithTags(key string, value any, tags []string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(key, old)
	}

	c.entries[key] = &entry{
		value:     value,
		tags:      tags,
		expiresAt: time.Now().Add(ttl),
	}
	for _, tag := range tags {
		keys := c.tags[tag]
		if keys == nil {
			keys = make(map[string]struct{})
			c.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}

	c.logger.Debug("cache set", "key", key, "tags", tags, "ttl", ttl)
}

// InvalidateByTag removes every key registered under tag. Keys registered
// under multiple tags are removed once. Invalidating an unknown tag is a
// no-op.
func (c *TaggedCache) InvalidateByTag(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, ok := c.tags[tag]
	if !ok {
		return
	}
	for key := range keys {
		if e, ok := c.entries[key]; ok {
			c.removeLocked(key, e)
		}
	}
	delete(c.tags, tag)

	c.logger.Debug("cache tag invalidated", "tag", tag, "keys", len(keys))
}

// InvalidateKey removes a single key and its tag registrations.
func (c *TaggedCache) InvalidateKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.removeLocked(key, e)
	}
}

// Len returns the number of live entries, counting expired-but-unswept
// entries as absent.
func (c *TaggedCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	n := 0
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

// Close stops the expiry sweeper. The cache remains usable afterwards;
// expired entries are then only dropped lazily on read.
func (c *TaggedCache) Close() {
	close(c.stop)
}

// removeLocked deletes an entry and unregisters it from its tags.
// Caller must hold the write lock.
func (c *TaggedCache) removeLocked(key string, e *entry) {
	delete(c.entries, key)
	for _, tag := range e.tags {
		if keys, ok := c.tags[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.tags, tag)
			}
		}
	}
}

func (c *TaggedCache) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, e := range c.entries {
				if now.After(e.expiresAt) {
					c.removeLocked(key, e)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}
