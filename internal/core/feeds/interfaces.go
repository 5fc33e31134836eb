package feeds

import (
	"context"
	"time"

	"Murmur/internal/core/posts"
)

// Service defines feed business logic
type Service interface {
	// GetFeed returns one page of the viewer's personalized feed,
	// cache-accelerated, falling back to a general ranked feed for
	// viewers with no personalization signal.
	GetFeed(ctx context.Context, req GetFeedRequest) (*FeedPage, error)

	// GetTrendingFeed returns one page of the recency-weighted trending
	// feed, served from the trending sorted set when it is warm and from
	// the authoritative aggregation when it is cold.
	GetTrendingFeed(ctx context.Context, req GetTrendingRequest) (*FeedPage, error)

	// EnrichFeedWithCurrentData overlays viewer-relative fields (is-liked,
	// is-favorited) onto copies of the given posts. Pure read: it never
	// invalidates or rewrites the cache entry the posts came from.
	EnrichFeedWithCurrentData(ctx context.Context, feed []*posts.FeedPost, viewerDID string) ([]*posts.FeedPost, error)
}

// Repository is the authoritative read surface for feed generation.
type Repository interface {
	// GetFeedForUser computes the personalized ranking restricted to and
	// boosted by the viewer's followed authors and affinity tags.
	GetFeedForUser(ctx context.Context, viewerID int64, affinityTags []string, followedIDs []int64, page, limit int) ([]*posts.FeedPost, int, error)

	// GetRankedFeed computes the general feed (global recency + engagement
	// scoring) used for cold-start viewers.
	GetRankedFeed(ctx context.Context, page, limit int) ([]*posts.FeedPost, int, error)

	// GetTrendingFeedWithFacet is the aggregation fallback for a cold
	// trending window: most-engaged posts within the recency window plus
	// the window's total, in one round trip.
	GetTrendingFeedWithFacet(ctx context.Context, page, limit int) ([]*posts.FeedPost, int, error)

	// FindPostsByIDs hydrates posts by public id, ordered by input. Ids
	// with no live post are skipped.
	FindPostsByIDs(ctx context.Context, publicIDs []string) ([]*posts.FeedPost, error)
}

// ViewerReader resolves feed requesters and their personalization signal.
type ViewerReader interface {
	ResolveViewer(ctx context.Context, did string) (*Viewer, error)
	GetAffinityTags(ctx context.Context, viewerID int64, topN int) ([]string, error)
	GetFollowedAuthorIDs(ctx context.Context, viewerID int64) ([]int64, error)
}

// TrendingStore is the sorted-set accelerator for the trending feed,
// ordered by recency-decayed engagement score.
type TrendingStore interface {
	// GetTrendingRange returns the post ids of one page of the trending
	// window, best first. An empty result means the window is cold.
	GetTrendingRange(ctx context.Context, page, limit int) ([]string, error)

	// GetTrendingCount returns the number of posts in the trending window.
	GetTrendingCount(ctx context.Context) (int, error)
}

// EngagementReader is the batch lookup used by enrichment.
type EngagementReader interface {
	GetLikedPostIDs(ctx context.Context, viewerDID string, postIDs []string) (map[string]bool, error)
	GetFavoritedPostIDs(ctx context.Context, viewerDID string, postIDs []string) (map[string]bool, error)
}

// Cache is the tagged feed-page cache consumed by the engine.
type Cache interface {
	GetWithTags(key string) (any, bool)
	SetWithTags(key string, value any, tags []string, ttl time.Duration)
	InvalidateByTag(tag string)
	InvalidateKey(key string)
}

// EventPublisher emits domain events for downstream analytics/onboarding.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Event is a platform domain event.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ViewerDID  string    `json:"viewerDid,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// EventColdStartFeedGenerated is published when page 1 of a cold-start
// feed is generated, exactly once per generating request.
const EventColdStartFeedGenerated = "feed.coldstart.generated"
