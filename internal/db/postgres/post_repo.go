package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"Murmur/internal/core/posts"
	"Murmur/internal/core/views"
)

type postgresPostRepo struct {
	db *sql.DB
}

// NewPostRepository creates the PostgreSQL post repository. It serves the
// view path's post lookup and the write queue's counter increment.
func NewPostRepository(db *sql.DB) *postgresPostRepo {
	return &postgresPostRepo{db: db}
}

var _ views.PostReader = (*postgresPostRepo)(nil)
var _ views.CounterWriter = (*postgresPostRepo)(nil)

// FindByPublicID returns the post identity slice the view path needs, or
// posts.ErrNotFound.
func (r *postgresPostRepo) FindByPublicID(ctx context.Context, publicID string) (*views.PostInfo, error) {
	query := `
		SELECT p.public_id, u.did
		FROM posts p
		INNER JOIN users u ON p.author_id = u.id
		WHERE p.public_id = $1 AND p.deleted_at IS NULL`

	info := &views.PostInfo{}
	err := r.db.QueryRowContext(ctx, query, publicID).Scan(&info.PublicID, &info.AuthorDID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, posts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post by public id: %w", err)
	}
	return info, nil
}

// IncrementViewCount bumps the denormalized counter. Called only from the
// write queue; a lost increment is acceptable, a duplicate is not, so the
// caller guards with the idempotent view store.
func (r *postgresPostRepo) IncrementViewCount(ctx context.Context, postID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET view_count = view_count + 1 WHERE public_id = $1 AND deleted_at IS NULL`,
		postID)
	if err != nil {
		return fmt.Errorf("failed to increment view count: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		// Post deleted between the view and the deferred increment; the
		// counter no longer exists to maintain.
		return nil
	}
	return nil
}
