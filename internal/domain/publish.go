package domain

import "time"

// Platform enumerates supported publishing targets.
type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
)

// KnownPlatform reports whether p names a supported target.
func KnownPlatform(p Platform) bool {
	switch p {
	case PlatformTikTok, PlatformInstagram, PlatformFacebook:
		return true
	}
	return false
}

// PublishTask tracks one (job, platform) publish attempt. It shares the
// terminal-state invariant with Job: once completed or failed nothing may
// change.
type PublishTask struct {
	ID        string
	JobID     string
	Platform  Platform
	Caption   string
	Status    JobStatus
	PostID    string
	PostURL   string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PostRecord is the durable row for a successfully published post.
type PostRecord struct {
	ID        string
	VideoID   string
	Platform  Platform
	PostID    string
	PostURL   string
	Caption   string
	CreatedAt time.Time
}
