package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"promoreel/internal/domain"
)

// PostRepositoryPG implements domain.PostRepository.
type PostRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewPostRepository creates a new post repository backed by PostgreSQL.
func NewPostRepository(pool *pgxpool.Pool) *PostRepositoryPG {
	return &PostRepositoryPG{pool: pool}
}

// Create inserts a published post record.
func (r *PostRepositoryPG) Create(ctx context.Context, post *domain.PostRecord) error {
	query := `
INSERT INTO posts (id, video_id, platform, post_id, post_url, caption)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err := r.pool.Exec(ctx, query,
		post.ID,
		post.VideoID,
		post.Platform,
		post.PostID,
		post.PostURL,
		post.Caption,
	)
	return err
}

// ListByVideoID returns the posts published for a video, newest first.
func (r *PostRepositoryPG) ListByVideoID(ctx context.Context, videoID string) ([]domain.PostRecord, error) {
	query := `
SELECT id, video_id, platform, post_id, post_url, caption, created_at
FROM posts
WHERE video_id = $1
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, query, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.PostRecord
	for rows.Next() {
		var post domain.PostRecord
		if err := rows.Scan(
			&post.ID,
			&post.VideoID,
			&post.Platform,
			&post.PostID,
			&post.PostURL,
			&post.Caption,
			&post.CreatedAt,
		); err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

var _ domain.PostRepository = (*PostRepositoryPG)(nil)
