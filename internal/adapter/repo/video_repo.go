package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"promoreel/internal/domain"
)

// VideoRepositoryPG implements domain.VideoRepository.
type VideoRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewVideoRepository creates a new video repository backed by PostgreSQL.
func NewVideoRepository(pool *pgxpool.Pool) *VideoRepositoryPG {
	return &VideoRepositoryPG{pool: pool}
}

// Create inserts a new video record.
func (r *VideoRepositoryPG) Create(ctx context.Context, rec *domain.VideoRecord) error {
	query := `
INSERT INTO videos (id, user_id, title, status, request_json, script, provider, artifact_url, thumbnail_url, duration_seconds, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`
	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Title,
		rec.Status,
		rec.RequestJSON,
		rec.Script,
		rec.Provider,
		rec.ArtifactURL,
		rec.ThumbnailURL,
		rec.DurationSeconds,
		rec.ErrorMessage,
	)
	return err
}

// UpdateStatus updates the lifecycle status and optionally the error message.
func (r *VideoRepositoryPG) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errMsg *string) error {
	query := `
UPDATE videos
SET status = $2,
    updated_at = NOW(),
    error_message = COALESCE($3, error_message)
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, status, errMsg)
	return err
}

// SetScript stores the generated script once the pipeline has one.
func (r *VideoRepositoryPG) SetScript(ctx context.Context, id string, script string) error {
	query := `
UPDATE videos
SET script = $2,
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, script)
	return err
}

// SetArtifact records the stored artifact, its thumbnail, and the provider
// that produced it.
func (r *VideoRepositoryPG) SetArtifact(ctx context.Context, id string, artifactURL, thumbnailURL string, durationSeconds int, provider string) error {
	query := `
UPDATE videos
SET artifact_url = $2,
    thumbnail_url = $3,
    duration_seconds = $4,
    provider = $5,
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, artifactURL, thumbnailURL, durationSeconds, provider)
	return err
}

// GetByID fetches a video record by its identifier.
func (r *VideoRepositoryPG) GetByID(ctx context.Context, id string) (*domain.VideoRecord, error) {
	query := `
SELECT id, user_id, title, status, request_json, script, provider, artifact_url, thumbnail_url, duration_seconds, error_message, created_at, updated_at
FROM videos
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, id)
	var rec domain.VideoRecord
	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Title,
		&rec.Status,
		&rec.RequestJSON,
		&rec.Script,
		&rec.Provider,
		&rec.ArtifactURL,
		&rec.ThumbnailURL,
		&rec.DurationSeconds,
		&rec.ErrorMessage,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

var _ domain.VideoRepository = (*VideoRepositoryPG)(nil)
