package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"Murmur/internal/core/feeds"
	"Murmur/internal/core/posts"
)

type postgresUserRepo struct {
	db *sql.DB
}

// NewUserRepository creates the viewer-resolution repository consumed by
// the feed rank engine.
func NewUserRepository(db *sql.DB) feeds.ViewerReader {
	return &postgresUserRepo{db: db}
}

// ResolveViewer maps a public DID to the internal viewer identity.
func (r *postgresUserRepo) ResolveViewer(ctx context.Context, did string) (*feeds.Viewer, error) {
	query := `SELECT id, did, handle, created_at FROM users WHERE did = $1`

	v := &feeds.Viewer{}
	err := r.db.QueryRowContext(ctx, query, did).Scan(&v.ID, &v.DID, &v.Handle, &v.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, posts.ErrViewerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve viewer: %w", err)
	}
	return v, nil
}

// GetAffinityTags returns the viewer's strongest topic affinities, best
// first. Scores accrue from likes and comments elsewhere in the platform.
func (r *postgresUserRepo) GetAffinityTags(ctx context.Context, viewerID int64, topN int) ([]string, error) {
	query := `
		SELECT tag
		FROM affinity_tags
		WHERE user_id = $1
		ORDER BY score DESC, tag ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, viewerID, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to query affinity tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan affinity tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// GetFollowedAuthorIDs returns the internal ids of every author the viewer
// follows.
func (r *postgresUserRepo) GetFollowedAuthorIDs(ctx context.Context, viewerID int64) ([]int64, error) {
	query := `SELECT followee_id FROM follows WHERE follower_id = $1`

	rows, err := r.db.QueryContext(ctx, query, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query follows: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan followee id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
