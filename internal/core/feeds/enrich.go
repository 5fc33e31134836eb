package feeds

import (
	"context"

	"Murmur/internal/core/posts"
	"Murmur/internal/core/retry"
)

// EnrichFeedWithCurrentData overlays viewer-relative engagement state onto
// a feed page that may be minutes old. The input posts — typically aliases
// of a shared cache entry — are never mutated; the overlay lands on deep
// copies. Idempotent: enriching the same input twice yields the same
// output.
func (s *feedService) EnrichFeedWithCurrentData(ctx context.Context, feed []*posts.FeedPost, viewerDID string) ([]*posts.FeedPost, error) {
	enriched := make([]*posts.FeedPost, len(feed))
	for i, fp := range feed {
		enriched[i] = fp.Clone()
	}

	if viewerDID == "" || len(enriched) == 0 || s.engage == nil {
		return enriched, nil
	}

	ids := make([]string, len(enriched))
	for i, fp := range enriched {
		ids[i] = fp.PublicID
	}

	// Liked and favorited state are independent batch fetches; fail fast
	// on the first unrecoverable one.
	ops := []func(context.Context) (map[string]bool, error){
		func(ctx context.Context) (map[string]bool, error) {
			return s.engage.GetLikedPostIDs(ctx, viewerDID, ids)
		},
		func(ctx context.Context) (map[string]bool, error) {
			return s.engage.GetFavoritedPostIDs(ctx, viewerDID, ids)
		},
	}
	results, err := retry.ExecuteAll(ctx, ops, s.retryCfg, false)
	if err != nil {
		return nil, err
	}

	liked, favorited := results[0].Value, results[1].Value
	for _, fp := range enriched {
		fp.IsLiked = liked[fp.PublicID]
		fp.IsFavorited = favorited[fp.PublicID]
	}
	return enriched, nil
}
