// Package speech holds the voiceover synthesis providers and their fallback
// gateway. All rostered providers are synchronous at the contract level;
// providers that hand back a result URL download it before returning.
package speech

import (
	"context"
	"errors"
	"fmt"

	"promoreel/internal/domain"
)

// ErrMissingAPIKey indicates a provider was invoked without credentials.
var ErrMissingAPIKey = errors.New("speech: api key is not configured")

// Request carries the text to narrate. Voice is provider-specific and may be
// empty, in which case each provider falls back to its configured default.
type Request struct {
	JobID  string
	Text   string
	Voice  string
	Locale string
}

// Synthesizer converts script text into narration audio.
type Synthesizer interface {
	Name() string
	Available() bool
	Synthesize(ctx context.Context, req Request) (*domain.Artifact, error)
}

// statusError classifies an HTTP failure the same way the video providers
// do: client errors are declared provider failures, server errors stay
// transient.
func statusError(provider string, code int, detail string) error {
	if code >= 400 && code < 500 {
		return fmt.Errorf("%w: %s status %d: %s", domain.ErrProviderFailure, provider, code, detail)
	}
	return fmt.Errorf("%s status %d: %s", provider, code, detail)
}
