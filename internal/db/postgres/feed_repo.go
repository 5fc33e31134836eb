package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"Murmur/internal/core/feeds"
	"Murmur/internal/core/posts"
)

// rankScoreExpression is the recency-decayed engagement score used for the
// general (cold start) feed: engagement over a power-law age penalty.
// Computed at query time; cannot be indexed.
const rankScoreExpression = `((p.like_count * 3 + p.comment_count * 2 + p.view_count * 0.25 + 1)
		/ POWER(EXTRACT(EPOCH FROM (NOW() - p.created_at))/3600 + 2, 1.5))`

// trendScoreExpression weighs recent engagement more aggressively for the
// trending aggregation fallback.
const trendScoreExpression = `((p.like_count * 4 + p.comment_count * 3 + p.view_count * 0.5)
		/ POWER(EXTRACT(EPOCH FROM (NOW() - p.created_at))/3600 + 1.5, 1.8))`

// trendingWindow bounds the trending aggregation fallback. Must stay in
// sync with the sorted-set window maintained in redis.
const trendingWindow = "48 hours"

const feedPostColumns = `
		p.public_id, p.title, p.content, p.tags,
		p.like_count, p.comment_count, p.view_count, p.created_at,
		u.public_id AS author_public_id, u.handle, u.display_name, u.avatar_url`

type postgresFeedRepo struct {
	db *sql.DB
}

// NewFeedRepository creates the PostgreSQL feed repository.
func NewFeedRepository(db *sql.DB) feeds.Repository {
	return &postgresFeedRepo{db: db}
}

// GetRankedFeed computes the general feed: global recency + engagement
// scoring, no personalization signal required.
func (r *postgresFeedRepo) GetRankedFeed(ctx context.Context, page, limit int) ([]*posts.FeedPost, int, error) {
	query := fmt.Sprintf(`
		SELECT %s, %s AS rank_score
		FROM posts p
		INNER JOIN users u ON p.author_id = u.id
		WHERE p.deleted_at IS NULL
		ORDER BY rank_score DESC, p.created_at DESC, p.public_id DESC
		LIMIT $1 OFFSET $2`, feedPostColumns, rankScoreExpression)

	data, err := r.queryFeedPosts(ctx, query, true, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query ranked feed: %w", err)
	}

	total, err := r.countPosts(ctx, `SELECT COUNT(*) FROM posts p WHERE p.deleted_at IS NULL`)
	if err != nil {
		return nil, 0, err
	}
	return data, total, nil
}

// GetFeedForUser computes the personalized ranking: posts by followed
// authors or matching the viewer's affinity tags, with a follow boost on
// top of the rank score.
func (r *postgresFeedRepo) GetFeedForUser(ctx context.Context, viewerID int64, affinityTags []string, followedIDs []int64, page, limit int) ([]*posts.FeedPost, int, error) {
	filter := `
		FROM posts p
		INNER JOIN users u ON p.author_id = u.id
		WHERE p.deleted_at IS NULL
			AND p.author_id <> $3
			AND (p.author_id = ANY($4) OR p.tags && $5)`

	query := fmt.Sprintf(`
		SELECT %s,
			%s * (CASE WHEN p.author_id = ANY($4) THEN 2.0 ELSE 1.0 END) AS rank_score
		%s
		ORDER BY rank_score DESC, p.created_at DESC, p.public_id DESC
		LIMIT $1 OFFSET $2`, feedPostColumns, rankScoreExpression, filter)

	args := []interface{}{limit, (page - 1) * limit, viewerID, pq.Array(followedIDs), pq.Array(affinityTags)}
	data, err := r.queryFeedPosts(ctx, query, true, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query personalized feed: %w", err)
	}

	countQuery := `
		SELECT COUNT(*)
		FROM posts p
		WHERE p.deleted_at IS NULL
			AND p.author_id <> $1
			AND (p.author_id = ANY($2) OR p.tags && $3)`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, viewerID, pq.Array(followedIDs), pq.Array(affinityTags)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count personalized feed: %w", err)
	}
	return data, total, nil
}

// GetTrendingFeedWithFacet is the cold-window fallback: most-engaged posts
// inside the recency window plus the window total, one round trip via a
// window function.
func (r *postgresFeedRepo) GetTrendingFeedWithFacet(ctx context.Context, page, limit int) ([]*posts.FeedPost, int, error) {
	query := fmt.Sprintf(`
		SELECT %s, %s AS trend_score, COUNT(*) OVER() AS window_total
		FROM posts p
		INNER JOIN users u ON p.author_id = u.id
		WHERE p.deleted_at IS NULL
			AND p.created_at > NOW() - INTERVAL '%s'
		ORDER BY trend_score DESC, p.created_at DESC, p.public_id DESC
		LIMIT $1 OFFSET $2`, feedPostColumns, trendScoreExpression, trendingWindow)

	rows, err := r.db.QueryContext(ctx, query, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query trending facet: %w", err)
	}
	defer rows.Close()

	var data []*posts.FeedPost
	var total int
	for rows.Next() {
		fp, score, windowTotal, err := scanFeedPostWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan trending post: %w", err)
		}
		fp.TrendScore = &score
		data = append(data, fp)
		total = windowTotal
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating trending results: %w", err)
	}

	// An empty page past the end of the window loses the facet total;
	// recount so pagination metadata stays correct.
	if len(data) == 0 {
		total, err = r.countPosts(ctx, fmt.Sprintf(
			`SELECT COUNT(*) FROM posts p WHERE p.deleted_at IS NULL AND p.created_at > NOW() - INTERVAL '%s'`, trendingWindow))
		if err != nil {
			return nil, 0, err
		}
	}
	return data, total, nil
}

// FindPostsByIDs hydrates feed posts by public id, preserving input order.
// Unknown or deleted ids are skipped.
func (r *postgresFeedRepo) FindPostsByIDs(ctx context.Context, publicIDs []string) ([]*posts.FeedPost, error) {
	if len(publicIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM posts p
		INNER JOIN users u ON p.author_id = u.id
		WHERE p.deleted_at IS NULL AND p.public_id = ANY($1)`, feedPostColumns)

	data, err := r.queryFeedPosts(ctx, query, false, pq.Array(publicIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query posts by ids: %w", err)
	}

	byID := make(map[string]*posts.FeedPost, len(data))
	for _, fp := range data {
		byID[fp.PublicID] = fp
	}
	ordered := make([]*posts.FeedPost, 0, len(data))
	for _, id := range publicIDs {
		if fp, ok := byID[id]; ok {
			ordered = append(ordered, fp)
		}
	}
	return ordered, nil
}

func (r *postgresFeedRepo) queryFeedPosts(ctx context.Context, query string, withScore bool, args ...interface{}) ([]*posts.FeedPost, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*posts.FeedPost
	for rows.Next() {
		var fp *posts.FeedPost
		var scanErr error
		if withScore {
			var score float64
			fp, scanErr = scanFeedPost(rows, &score)
			if scanErr == nil {
				fp.RankScore = &score
			}
		} else {
			fp, scanErr = scanFeedPost(rows, nil)
		}
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

func (r *postgresFeedRepo) countPosts(ctx context.Context, query string) (int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return total, nil
}

// scanFeedPost scans one feedPostColumns row; score, when non-nil, scans a
// trailing score column.
func scanFeedPost(rows *sql.Rows, score *float64) (*posts.FeedPost, error) {
	fp := &posts.FeedPost{}
	var tags pq.StringArray
	var displayName, avatarURL sql.NullString

	dest := []interface{}{
		&fp.PublicID, &fp.Title, &fp.Content, &tags,
		&fp.LikeCount, &fp.CommentCount, &fp.ViewCount, &fp.CreatedAt,
		&fp.Author.PublicID, &fp.Author.Handle, &displayName, &avatarURL,
	}
	if score != nil {
		dest = append(dest, score)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	fp.Tags = tags
	fp.Author.DisplayName = displayName.String
	fp.Author.AvatarURL = avatarURL.String
	return fp, nil
}

func scanFeedPostWithTotal(rows *sql.Rows) (*posts.FeedPost, float64, int, error) {
	fp := &posts.FeedPost{}
	var tags pq.StringArray
	var displayName, avatarURL sql.NullString
	var score float64
	var total int

	err := rows.Scan(
		&fp.PublicID, &fp.Title, &fp.Content, &tags,
		&fp.LikeCount, &fp.CommentCount, &fp.ViewCount, &fp.CreatedAt,
		&fp.Author.PublicID, &fp.Author.Handle, &displayName, &avatarURL,
		&score, &total,
	)
	if err != nil {
		return nil, 0, 0, err
	}

	fp.Tags = tags
	fp.Author.DisplayName = displayName.String
	fp.Author.AvatarURL = avatarURL.String
	return fp, score, total, nil
}
