package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"Murmur/internal/core/feeds"
)

// Subjects produced by the platform's write paths. This package only
// consumes them; post and follow services own the payloads.
const (
	SubjectPostCreated   = "post.created"
	SubjectPostDeleted   = "post.deleted"
	SubjectFollowChanged = "follow.changed"
)

// PostEvent is the payload of post.created / post.deleted.
type PostEvent struct {
	PostID    string `json:"postId"`
	AuthorDID string `json:"authorDid"`
}

// FollowEvent is the payload of follow.changed, emitted on both follow and
// unfollow.
type FollowEvent struct {
	FollowerDID string `json:"followerDid"`
	FolloweeDID string `json:"followeeDid"`
}

// FilterDropper releases per-post filter state when a post is deleted.
type FilterDropper interface {
	DropPost(postID string)
}

// TrendingRemover evicts a deleted post from the trending window.
type TrendingRemover interface {
	RemovePost(ctx context.Context, postID string) error
}

// Invalidator translates platform write events into cache tag
// invalidations, using only the tag-naming convention — it does not know
// which write paths exist beyond its subscriptions.
type Invalidator struct {
	cache    feeds.Cache
	filter   FilterDropper
	trending TrendingRemover

	// invalidateDepth is how many leading feed pages a content write
	// invalidates. New and deleted posts surface on the head of
	// recency-led feeds; deep pages age out via TTL instead.
	invalidateDepth int

	logger *slog.Logger
	subs   []*nats.Subscription
}

// NewInvalidator creates the event-driven cache invalidator. filter and
// trending may be nil.
func NewInvalidator(cache feeds.Cache, filter FilterDropper, trending TrendingRemover, invalidateDepth int, logger *slog.Logger) *Invalidator {
	if invalidateDepth <= 0 {
		invalidateDepth = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{
		cache:           cache,
		filter:          filter,
		trending:        trending,
		invalidateDepth: invalidateDepth,
		logger:          logger,
	}
}

// Subscribe attaches the invalidator to the bus. Handlers run on NATS
// delivery goroutines; the tagged cache is safe under that concurrency.
func (i *Invalidator) Subscribe(nc *nats.Conn) error {
	subs := []struct {
		subject string
		handler nats.MsgHandler
	}{
		{SubjectPostCreated, i.onPostCreated},
		{SubjectPostDeleted, i.onPostDeleted},
		{SubjectFollowChanged, i.onFollowChanged},
	}

	for _, s := range subs {
		sub, err := nc.Subscribe(s.subject, s.handler)
		if err != nil {
			i.Drain()
			return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
		}
		i.subs = append(i.subs, sub)
	}
	return nil
}

// Drain detaches all subscriptions, letting in-flight handlers finish.
func (i *Invalidator) Drain() {
	for _, sub := range i.subs {
		if err := sub.Drain(); err != nil {
			i.logger.Error("failed to drain subscription", "error", err)
		}
	}
	i.subs = nil
}

// onPostCreated invalidates the head pages of every feed and the trending
// pages: a new post can only surface at the top of a recency-led ranking.
func (i *Invalidator) onPostCreated(msg *nats.Msg) {
	var event PostEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		i.logger.Error("malformed post.created event", "error", err)
		return
	}

	i.invalidateHeadPages()
	i.cache.InvalidateByTag(feeds.TagViewer(feeds.TrendingSegment))
	i.logger.Debug("cache invalidated for new post", "post", event.PostID)
}

// onPostDeleted invalidates like onPostCreated and additionally releases
// the post's view-filter shard.
func (i *Invalidator) onPostDeleted(msg *nats.Msg) {
	var event PostEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		i.logger.Error("malformed post.deleted event", "error", err)
		return
	}

	i.invalidateHeadPages()
	i.cache.InvalidateByTag(feeds.TagViewer(feeds.TrendingSegment))
	if i.filter != nil {
		i.filter.DropPost(event.PostID)
	}
	if i.trending != nil {
		if err := i.trending.RemovePost(context.Background(), event.PostID); err != nil {
			i.logger.Error("failed to evict deleted post from trending", "post", event.PostID, "error", err)
		}
	}
	i.logger.Debug("cache invalidated for deleted post", "post", event.PostID)
}

// onFollowChanged invalidates only the follower's cached pages: the follow
// graph change affects no other viewer's ranking.
func (i *Invalidator) onFollowChanged(msg *nats.Msg) {
	var event FollowEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		i.logger.Error("malformed follow.changed event", "error", err)
		return
	}

	i.cache.InvalidateByTag(feeds.TagViewer(event.FollowerDID))
	i.logger.Debug("cache invalidated for follow change", "viewer", event.FollowerDID)
}

func (i *Invalidator) invalidateHeadPages() {
	for page := 1; page <= i.invalidateDepth; page++ {
		i.cache.InvalidateByTag(feeds.TagPage(page))
	}
}
