package speech

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/retry"
)

// GatewayOptions configures the fallback chain.
type GatewayOptions struct {
	Providers        []Synthesizer
	Retry            *retry.Executor
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	Logger           zerolog.Logger
}

// Gateway sequences speech providers in configured order. There is no
// placeholder stage: an exhausted chain surfaces its error and the caller
// decides whether the narration was optional.
type Gateway struct {
	providers        []Synthesizer
	retry            *retry.Executor
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	logger           zerolog.Logger
}

func NewGateway(opts GatewayOptions) *Gateway {
	retryMaxAttempts := opts.RetryMaxAttempts
	if retryMaxAttempts < 1 {
		retryMaxAttempts = 3
	}
	retryBaseDelay := opts.RetryBaseDelay
	if retryBaseDelay <= 0 {
		retryBaseDelay = 500 * time.Millisecond
	}
	return &Gateway{
		providers:        opts.Providers,
		retry:            opts.Retry,
		retryMaxAttempts: retryMaxAttempts,
		retryBaseDelay:   retryBaseDelay,
		logger:           opts.Logger.With().Str("component", "speech_gateway").Logger(),
	}
}

// Synthesize walks the chain until one provider delivers narration audio.
func (g *Gateway) Synthesize(ctx context.Context, req Request, preferred string) (*domain.Artifact, error) {
	providers := orderSynthesizers(g.providers, preferred)

	var lastErr error
	attempted := false
	for _, p := range providers {
		if !p.Available() {
			g.logger.Debug().Str("provider", p.Name()).Str("job_id", req.JobID).Msg("provider unavailable, skipping")
			continue
		}
		attempted = true
		var clip *domain.Artifact
		err := g.retry.Do(ctx, p.Name()+" synthesize", g.retryMaxAttempts, g.retryBaseDelay, func(ctx context.Context) error {
			a, err := p.Synthesize(ctx, req)
			if err != nil {
				return err
			}
			clip = a
			return nil
		})
		if err == nil {
			g.logger.Info().
				Str("provider", p.Name()).
				Str("job_id", req.JobID).
				Int("bytes", len(clip.Data)).
				Msg("narration synthesized")
			return clip, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		g.logger.Warn().Str("provider", p.Name()).Str("job_id", req.JobID).Err(err).Msg("provider failed, cascading")
	}

	if !attempted {
		return nil, fmt.Errorf("%w: no speech provider available", domain.ErrProviderUnavailable)
	}
	return nil, fmt.Errorf("speech provider chain exhausted: %w", lastErr)
}

func orderSynthesizers(providers []Synthesizer, preferred string) []Synthesizer {
	preferred = strings.TrimSpace(strings.ToLower(preferred))
	if preferred == "" {
		return providers
	}
	ordered := make([]Synthesizer, 0, len(providers))
	var rest []Synthesizer
	for _, p := range providers {
		if p.Name() == preferred {
			ordered = append(ordered, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(ordered, rest...)
}
