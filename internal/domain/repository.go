package domain

import "context"

// VideoRepository defines persistence for video records.
type VideoRepository interface {
	Create(ctx context.Context, rec *VideoRecord) error
	UpdateStatus(ctx context.Context, id string, status JobStatus, errMsg *string) error
	SetScript(ctx context.Context, id string, script string) error
	SetArtifact(ctx context.Context, id string, artifactURL, thumbnailURL string, durationSeconds int, provider string) error
	GetByID(ctx context.Context, id string) (*VideoRecord, error)
}

// PostRepository defines persistence for published posts.
type PostRepository interface {
	Create(ctx context.Context, post *PostRecord) error
	ListByVideoID(ctx context.Context, videoID string) ([]PostRecord, error)
}
