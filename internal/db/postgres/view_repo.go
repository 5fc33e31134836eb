package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"Murmur/internal/core/views"
)

type postgresViewRepo struct {
	db *sql.DB
}

// NewViewRepository creates the authoritative view-record store. The
// (post, viewer) primary key makes RecordView idempotent at the database
// level; the probabilistic filter in front of it is purely an accelerator.
func NewViewRepository(db *sql.DB) views.Store {
	return &postgresViewRepo{db: db}
}

// RecordView persists the (postID, viewerDID) pair. Returns true iff the
// pair was newly recorded. ON CONFLICT DO NOTHING makes repeat calls
// side-effect free, and RowsAffected distinguishes the winner of a race.
func (r *postgresViewRepo) RecordView(ctx context.Context, postID, viewerDID string) (bool, error) {
	query := `
		INSERT INTO post_views (post_id, viewer_id)
		SELECT p.id, u.id
		FROM posts p, users u
		WHERE p.public_id = $1 AND p.deleted_at IS NULL AND u.did = $2
		ON CONFLICT (post_id, viewer_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, postID, viewerDID)
	if err != nil {
		return false, fmt.Errorf("failed to record view: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read record view result: %w", err)
	}
	return n > 0, nil
}
