package feeds

import (
	"fmt"
	"time"
)

// Cached pages go stale quickly by design; writes elsewhere invalidate the
// affected tags synchronously, so the TTL only bounds drift from writes
// that bypass the tag convention.
const CacheTTL = 300 * time.Second

// TrendingSegment is the viewer segment of the shared trending feed.
const TrendingSegment = "trending"

// CacheKey derives the deterministic cache key for a feed query shape.
// Two requests with identical (viewer, page, limit) always derive the same
// key; this is what keeps at most one cache entry per query shape.
func CacheKey(viewer string, page, limit int) string {
	return fmt.Sprintf("feed:%s:page:%d:limit:%d", viewer, page, limit)
}

// CacheTags derives the invalidation tags for a feed query shape: one per
// viewer, one per page, one per limit. A new follow invalidates only
// TagViewer(did); a new post invalidates the page tags it can appear on.
func CacheTags(viewer string, page, limit int) []string {
	return []string{
		TagViewer(viewer),
		TagPage(page),
		TagLimit(limit),
	}
}

// TagViewer names the tag registered for every cached page of one
// viewer's feed. This is the platform-wide convention write paths use.
func TagViewer(viewer string) string {
	return "feed:viewer:" + viewer
}

// TagPage names the tag registered for every cached feed page at a given
// page number, across viewers.
func TagPage(page int) string {
	return fmt.Sprintf("feed:page:%d", page)
}

// TagLimit names the tag registered for every cached feed page of a given
// page size.
func TagLimit(limit int) string {
	return fmt.Sprintf("feed:limit:%d", limit)
}
