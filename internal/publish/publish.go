// Package publish pushes finished artifacts to social platforms. Every
// adapter references the stored artifact by URL and never touches local
// bytes; the orchestrator tracks one task per (job, platform) with the same
// terminal invariant creation jobs have.
package publish

import (
	"context"
	"errors"
	"fmt"

	"promoreel/internal/domain"
)

// ErrMissingAccessToken is returned when the platform's credential is not
// configured at call time.
var ErrMissingAccessToken = errors.New("publish: access token is not configured")

// Request hands a stored artifact to a platform adapter.
type Request struct {
	TaskID      string
	JobID       string
	Caption     string
	ArtifactURL string
}

// Result is the terminal outcome of a successful publish.
type Result struct {
	PostID  string
	PostURL string
}

// Publisher is one platform adapter. Publish blocks until the platform
// reports a terminal state or the poll budget runs out.
type Publisher interface {
	Platform() domain.Platform
	Available() bool
	Publish(ctx context.Context, req Request) (*Result, error)
}

// statusError classifies an HTTP failure: 4xx means the platform looked at
// the request and rejected it, everything else stays transient.
func statusError(platform string, code int, detail string) error {
	if code >= 400 && code < 500 {
		return fmt.Errorf("%w: %s status %d: %s", domain.ErrProviderFailure, platform, code, detail)
	}
	return fmt.Errorf("%s status %d: %s", platform, code, detail)
}
