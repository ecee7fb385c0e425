package video

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/asyncop"
	"promoreel/internal/domain"
	"promoreel/internal/retry"
)

// GatewayOptions configures the fallback chain.
type GatewayOptions struct {
	Providers        []Provider
	Placeholder      *Placeholder
	Retry            *retry.Executor
	Poller           *asyncop.Poller
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	PollInterval     time.Duration
	PollMaxAttempts  int
	Logger           zerolog.Logger
}

// Gateway sequences video providers in configured order. Unavailable
// providers are skipped without being invoked; a provider that fails after
// its own retry and poll budget cascades to the next one. The placeholder,
// when configured, absorbs a fully exhausted chain so the job can still
// finish with a stand-in artifact.
type Gateway struct {
	providers        []Provider
	placeholder      *Placeholder
	retry            *retry.Executor
	poller           *asyncop.Poller
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	pollInterval     time.Duration
	pollMaxAttempts  int
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
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	pollMaxAttempts := opts.PollMaxAttempts
	if pollMaxAttempts < 1 {
		pollMaxAttempts = 120
	}
	return &Gateway{
		providers:        opts.Providers,
		placeholder:      opts.Placeholder,
		retry:            opts.Retry,
		poller:           opts.Poller,
		retryMaxAttempts: retryMaxAttempts,
		retryBaseDelay:   retryBaseDelay,
		pollInterval:     pollInterval,
		pollMaxAttempts:  pollMaxAttempts,
		logger:           opts.Logger.With().Str("component", "video_gateway").Logger(),
	}
}

// Generate walks the chain until one provider delivers an artifact. A
// preferred provider name, when set and present, is tried first; the rest of
// the chain keeps its configured order behind it.
func (g *Gateway) Generate(ctx context.Context, req domain.GenerationRequest, preferred string) (*domain.Artifact, error) {
	providers := orderProviders(g.providers, preferred)

	var lastErr error
	attempted := false
	for _, p := range providers {
		if !p.Available() {
			g.logger.Debug().Str("provider", p.Name()).Str("job_id", req.JobID).Msg("provider unavailable, skipping")
			continue
		}
		attempted = true
		artifact, err := g.generateWith(ctx, p, req)
		if err == nil {
			g.logger.Info().
				Str("provider", p.Name()).
				Str("job_id", req.JobID).
				Int("bytes", len(artifact.Data)).
				Int("duration_seconds", artifact.DurationSeconds).
				Msg("video generated")
			return artifact, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		g.logger.Warn().Str("provider", p.Name()).Str("job_id", req.JobID).Err(err).Msg("provider failed, cascading")
	}

	if g.placeholder != nil {
		g.logger.Warn().Str("job_id", req.JobID).Msg("provider chain exhausted, rendering placeholder")
		return g.placeholder.Generate(ctx, req)
	}
	if !attempted {
		return nil, fmt.Errorf("%w: no video provider available", domain.ErrProviderUnavailable)
	}
	return nil, fmt.Errorf("video provider chain exhausted: %w", lastErr)
}

func (g *Gateway) generateWith(ctx context.Context, p Provider, req domain.GenerationRequest) (*domain.Artifact, error) {
	switch impl := p.(type) {
	case AsyncGenerator:
		return g.generateAsync(ctx, impl, req)
	case Generator:
		var artifact *domain.Artifact
		err := g.retry.Do(ctx, impl.Name()+" generate", g.retryMaxAttempts, g.retryBaseDelay, func(ctx context.Context) error {
			a, err := impl.Generate(ctx, req)
			if err != nil {
				return err
			}
			artifact = a
			return nil
		})
		if err != nil {
			return nil, err
		}
		return artifact, nil
	default:
		return nil, fmt.Errorf("provider %s implements no generation contract", p.Name())
	}
}

func (g *Gateway) generateAsync(ctx context.Context, impl AsyncGenerator, req domain.GenerationRequest) (*domain.Artifact, error) {
	submit := func(ctx context.Context) (string, error) {
		var handle string
		err := g.retry.Do(ctx, impl.Name()+" submit", g.retryMaxAttempts, g.retryBaseDelay, func(ctx context.Context) error {
			h, err := impl.Submit(ctx, req)
			if err != nil {
				return err
			}
			handle = h
			return nil
		})
		return handle, err
	}
	ref, err := asyncop.AwaitCompletion(ctx, g.poller, impl.Name(), submit, impl.Poll, g.pollInterval, g.pollMaxAttempts)
	if err != nil {
		return nil, err
	}

	var artifact *domain.Artifact
	err = g.retry.Do(ctx, impl.Name()+" fetch", g.retryMaxAttempts, g.retryBaseDelay, func(ctx context.Context) error {
		a, err := impl.Fetch(ctx, req, ref)
		if err != nil {
			return err
		}
		artifact = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

func orderProviders(providers []Provider, preferred string) []Provider {
	preferred = strings.TrimSpace(strings.ToLower(preferred))
	if preferred == "" {
		return providers
	}
	ordered := make([]Provider, 0, len(providers))
	var rest []Provider
	for _, p := range providers {
		if p.Name() == preferred {
			ordered = append(ordered, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(ordered, rest...)
}
