package views

import (
	"context"

	"Murmur/internal/core/writequeue"
)

// Service defines view-recording business logic
type Service interface {
	// RecordView counts a view of postID by viewerDID at most once ever
	// per (post, viewer) pair. It returns whether this call produced a
	// newly counted view. Owners never produce counted views of their own
	// posts. The denormalized counter increment is deferred through the
	// write queue and is not reflected in the return value.
	RecordView(ctx context.Context, postID, viewerDID string) (bool, error)
}

// PostReader is the minimal post lookup the view path needs.
type PostReader interface {
	// FindByPublicID returns the post's identity or posts.ErrNotFound.
	FindByPublicID(ctx context.Context, publicID string) (*PostInfo, error)
}

// PostInfo is the slice of a post the view path cares about.
type PostInfo struct {
	PublicID  string
	AuthorDID string
}

// Store is the authoritative, idempotent view-record store.
type Store interface {
	// RecordView persists the (postID, viewerID) pair. Returns true iff
	// the pair was newly recorded; a repeat call returns false with no
	// side effect.
	RecordView(ctx context.Context, postID, viewerID string) (bool, error)
}

// CounterWriter applies the denormalized view-count increment. Only ever
// called through the write queue.
type CounterWriter interface {
	IncrementViewCount(ctx context.Context, postID string) error
}

// Filter is the probabilistic pre-check in front of the store.
type Filter interface {
	MightContain(postID, viewerID string) bool
	Add(postID, viewerID string)
}

// TrendingRecorder bumps the post's recency-decayed engagement score so
// the trending window stays warm.
type TrendingRecorder interface {
	RecordEngagement(ctx context.Context, postID string, delta float64) error
}

// Deferrer is the admission-controlled queue views submit increments to.
type Deferrer interface {
	ExecuteOrQueue(op writequeue.Operation, opts writequeue.Options)
}
