package viewfilter

import (
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Config sizes the per-post bloom filters. Both values are deployment
// tunables, not constants: bits-per-post scales with expected audience.
type Config struct {
	// ExpectedViewers is the number of distinct viewers a single post's
	// filter is sized for.
	ExpectedViewers int

	// FalsePositiveRate is the target probability that MightContain
	// returns true for a viewer who was never added, at ExpectedViewers
	// load. A false positive only skips one redundant authoritative
	// lookup; it never causes a duplicate count.
	FalsePositiveRate float64

	// RecentViewerCacheSize bounds the exact-match LRU that sits in front
	// of the bloom shards. Zero disables it.
	RecentViewerCacheSize int
}

// DefaultConfig suits posts with audiences up to ~10k distinct viewers.
var DefaultConfig = Config{
	ExpectedViewers:       10000,
	FalsePositiveRate:     0.01,
	RecentViewerCacheSize: 65536,
}

// Filter answers "has this viewer likely already been counted for this
// post" before the authoritative view store is consulted. It is a lossy,
// non-authoritative shadow of the view-record set: a hit skips a store
// round trip, a false positive costs one missed counter increment, and a
// false negative never occurs.
type Filter struct {
	mu     sync.RWMutex
	shards map[string]*bloomFilter // postID -> filter
	cfg    Config
	recent *lru.Cache[string, struct{}]
	logger *slog.Logger
}

// New creates a view filter. Zero sizing fields fall back to
// DefaultConfig; RecentViewerCacheSize zero disables the LRU layer.
func New(cfg Config, logger *slog.Logger) *Filter {
	if cfg.ExpectedViewers <= 0 {
		cfg.ExpectedViewers = DefaultConfig.ExpectedViewers
	}
	if cfg.FalsePositiveRate <= 0 || cfg.FalsePositiveRate >= 1 {
		cfg.FalsePositiveRate = DefaultConfig.FalsePositiveRate
	}
	if logger == nil {
		logger = slog.Default()
	}

	f := &Filter{
		shards: make(map[string]*bloomFilter),
		cfg:    cfg,
		logger: logger,
	}
	if cfg.RecentViewerCacheSize > 0 {
		// Error only fires for size <= 0, which is excluded above.
		f.recent, _ = lru.New[string, struct{}](cfg.RecentViewerCacheSize)
	}
	return f
}

// MightContain reports whether (postID, viewerID) was possibly added
// before. False means definitely not counted yet.
func (f *Filter) MightContain(postID, viewerID string) bool {
	key := memberKey(postID, viewerID)

	// Exact-match fast path for hot posts: recent repeat viewers
	// short-circuit without touching the shard lock.
	if f.recent != nil && f.recent.Contains(key) {
		return true
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	bf, ok := f.shards[postID]
	if !ok {
		return false
	}
	return bf.test(key)
}

// Add marks (postID, viewerID) as counted. After Add, MightContain for the
// same pair always returns true.
func (f *Filter) Add(postID, viewerID string) {
	key := memberKey(postID, viewerID)

	f.mu.Lock()
	bf, ok := f.shards[postID]
	if !ok {
		bf = newBloomFilter(f.cfg.ExpectedViewers, f.cfg.FalsePositiveRate)
		f.shards[postID] = bf
	}
	bf.add(key)
	f.mu.Unlock()

	if f.recent != nil {
		f.recent.Add(key, struct{}{})
	}
}

// DropPost releases the filter shard for a deleted post.
func (f *Filter) DropPost(postID string) {
	f.mu.Lock()
	delete(f.shards, postID)
	f.mu.Unlock()
}

// Posts returns the number of posts with a live filter shard.
func (f *Filter) Posts() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.shards)
}

func memberKey(postID, viewerID string) string {
	return postID + "\x00" + viewerID
}
