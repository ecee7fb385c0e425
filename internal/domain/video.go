package domain

import "time"

// VideoRecord is the durable row behind a creation job. The in-memory job
// tracker is volatile; this record carries the user-visible outcome across
// restarts.
type VideoRecord struct {
	ID              string
	UserID          string
	Title           string
	Status          JobStatus
	RequestJSON     []byte
	Script          string
	Provider        string
	ArtifactURL     string
	ThumbnailURL    string
	DurationSeconds int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
