// Package video holds the video synthesis providers and the fallback
// gateway that sequences them. Each provider normalizes its own wire
// contract to domain.Artifact and asyncop.PollStatus; the gateway owns
// retries, polling budgets, and cascading.
package video

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"promoreel/internal/asyncop"
	"promoreel/internal/domain"
)

// ErrMissingAPIKey indicates a provider was invoked without credentials.
var ErrMissingAPIKey = errors.New("video: api key is not configured")

// Generator is a synchronous provider: one call returns the artifact.
type Generator interface {
	Name() string
	Available() bool
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.Artifact, error)
}

// AsyncGenerator is a provider whose work is asynchronous: submit returns an
// opaque operation handle, poll reports progress, and fetch downloads the
// finished artifact reference.
type AsyncGenerator interface {
	Name() string
	Available() bool
	Submit(ctx context.Context, req domain.GenerationRequest) (string, error)
	Poll(ctx context.Context, handle string) (asyncop.PollStatus, error)
	Fetch(ctx context.Context, req domain.GenerationRequest, artifactRef string) (*domain.Artifact, error)
}

// Provider is the common surface the gateway sequences. Concrete types
// additionally implement Generator or AsyncGenerator.
type Provider interface {
	Name() string
	Available() bool
}

// normalizeAspect maps an aspect-ratio tag to output dimensions.
func normalizeAspect(aspect string) (int, int) {
	switch strings.TrimSpace(strings.ToLower(aspect)) {
	case "16:9", "":
		return 1920, 1080
	case "9:16":
		return 1080, 1920
	case "1:1", "square":
		return 1080, 1080
	case "4:5":
		return 1024, 1280
	default:
		parts := strings.Split(aspect, ":")
		if len(parts) == 2 {
			if a, errA := strconv.Atoi(strings.TrimSpace(parts[0])); errA == nil {
				if b, errB := strconv.Atoi(strings.TrimSpace(parts[1])); errB == nil && a > 0 && b > 0 {
					width := 1920
					return width, width * b / a
				}
			}
		}
		return 1920, 1080
	}
}

// targetDuration picks the requested duration, estimating one from the
// script when the caller left it unset.
func targetDuration(req domain.GenerationRequest) int {
	if req.DurationSeconds > 0 {
		return req.DurationSeconds
	}
	return estimateDurationSeconds(req.Script)
}

// estimateDurationSeconds derives a plausible runtime from script length.
func estimateDurationSeconds(script string) int {
	words := len(strings.Fields(script))
	if words == 0 {
		return 12
	}
	length := words / 3
	if length < 8 {
		return 8
	}
	if length > 45 {
		return 45
	}
	return length
}

// firstReferenceURL returns the first reference asset that is addressable by
// URL, for providers that take image URLs instead of inline bytes.
func firstReferenceURL(req domain.GenerationRequest) string {
	for _, ref := range req.References {
		src := strings.TrimSpace(ref.SourceURL)
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			return src
		}
	}
	return ""
}

// firstInlineReference returns the first reference asset carrying bytes, for
// providers that accept inline images.
func firstInlineReference(req domain.GenerationRequest) *domain.ReferenceAsset {
	for i := range req.References {
		if len(req.References[i].Data) > 0 {
			return &req.References[i]
		}
	}
	return nil
}
