package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"Murmur/internal/core/feeds"
)

type postgresEngagementRepo struct {
	db *sql.DB
}

// NewEngagementRepository creates the batch like/favorite lookup used by
// feed enrichment. Both queries are single round trips over the page's ids.
func NewEngagementRepository(db *sql.DB) feeds.EngagementReader {
	return &postgresEngagementRepo{db: db}
}

func (r *postgresEngagementRepo) GetLikedPostIDs(ctx context.Context, viewerDID string, postIDs []string) (map[string]bool, error) {
	return r.lookup(ctx, "post_likes", viewerDID, postIDs)
}

func (r *postgresEngagementRepo) GetFavoritedPostIDs(ctx context.Context, viewerDID string, postIDs []string) (map[string]bool, error) {
	return r.lookup(ctx, "post_favorites", viewerDID, postIDs)
}

// lookup returns the subset of postIDs present in the given engagement
// table for the viewer. The table name is always one of the two constants
// above, never caller input.
func (r *postgresEngagementRepo) lookup(ctx context.Context, table, viewerDID string, postIDs []string) (map[string]bool, error) {
	if len(postIDs) == 0 {
		return map[string]bool{}, nil
	}

	query := fmt.Sprintf(`
		SELECT p.public_id
		FROM %s e
		INNER JOIN posts p ON e.post_id = p.id
		INNER JOIN users u ON e.user_id = u.id
		WHERE u.did = $1 AND p.public_id = ANY($2)`, table)

	rows, err := r.db.QueryContext(ctx, query, viewerDID, pq.Array(postIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]bool, len(postIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		out[id] = true
	}
	return out, rows.Err()
}
