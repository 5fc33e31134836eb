package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// trendingKey is the shared sorted set of post ids scored by
// recency-decayed engagement. Write paths ZINCRBY it on likes, comments
// and counted views; the feed engine reads ranked windows from it.
const trendingKey = "trending:posts"

// maxTrendingEntries caps the sorted set so a long-lived window does not
// grow without bound.
const maxTrendingEntries = 10000

type TrendingRepo struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTrendingRepo creates the sorted-set trending store. ttl is the warm
// window lifetime: the whole key expires if no engagement refreshes it.
func NewTrendingRepo(client *redis.Client, ttl time.Duration) *TrendingRepo {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &TrendingRepo{client: client, ttl: ttl}
}

// GetTrendingRange returns one page of post ids, best score first. An
// empty slice means the window is cold and the caller should aggregate
// from the authoritative store.
func (r *TrendingRepo) GetTrendingRange(ctx context.Context, page, limit int) ([]string, error) {
	start := int64((page - 1) * limit)
	stop := start + int64(limit) - 1

	ids, err := r.client.ZRevRange(ctx, trendingKey, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read trending range: %w", err)
	}
	return ids, nil
}

// GetTrendingCount returns the number of posts in the trending window.
func (r *TrendingRepo) GetTrendingCount(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, trendingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count trending set: %w", err)
	}
	return int(n), nil
}

// RecordEngagement bumps a post's trend score. The pipeline also trims the
// set to its cap and refreshes the window TTL.
func (r *TrendingRepo) RecordEngagement(ctx context.Context, postID string, delta float64) error {
	pipe := r.client.Pipeline()
	pipe.ZIncrBy(ctx, trendingKey, delta, postID)
	pipe.ZRemRangeByRank(ctx, trendingKey, 0, -int64(maxTrendingEntries)-1)
	pipe.Expire(ctx, trendingKey, r.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record engagement: %w", err)
	}
	return nil
}

// RemovePost drops a deleted post from the trending window.
func (r *TrendingRepo) RemovePost(ctx context.Context, postID string) error {
	if err := r.client.ZRem(ctx, trendingKey, postID).Err(); err != nil {
		return fmt.Errorf("failed to remove post from trending set: %w", err)
	}
	return nil
}
