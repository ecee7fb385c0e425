package video

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
)

// Placeholder renders a deterministic stand-in artifact when every real
// provider is down. The bytes are reproducible for a given request so repeated
// runs of the same job produce the same output.
type Placeholder struct {
	logger zerolog.Logger
}

func NewPlaceholder(logger zerolog.Logger) *Placeholder {
	return &Placeholder{logger: logger.With().Str("provider", "placeholder").Logger()}
}

func (p *Placeholder) Name() string { return "placeholder" }

func (p *Placeholder) Available() bool { return true }

// Generate produces the placeholder artifact synchronously.
func (p *Placeholder) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := deterministicSeed(req.JobID, req.Script, req.Locale, req.AspectRatio)
	duration := targetDuration(req)
	width, height := normalizeAspect(req.AspectRatio)
	p.logger.Info().
		Str("job_id", req.JobID).
		Str("seed", seed).
		Int("duration_seconds", duration).
		Msg("rendering placeholder video")
	return &domain.Artifact{
		Data:            renderPlaceholderVideo(seed, req.Script),
		MIME:            "video/mp4",
		DurationSeconds: duration,
		Width:           width,
		Height:          height,
		Provider:        p.Name(),
		CostEstimate:    0,
	}, nil
}

func renderPlaceholderVideo(seed, script string) []byte {
	lines := []string{
		"Placeholder promo video", fmt.Sprintf("Seed: %s", seed), fmt.Sprintf("Script: %s", strings.TrimSpace(script)), "", "This placeholder represents where rendered video bytes would be stored once a", "remote video provider accepts the request."}
	return []byte(strings.Join(lines, "\n"))
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

var _ Generator = (*Placeholder)(nil)
