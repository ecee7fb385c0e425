package script

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
	Providers        []Service
	Retry            *retry.Executor
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	Logger           zerolog.Logger
}

// Gateway sequences script providers in configured order. Whether an
// exhausted chain is fatal is the caller's decision: analysis failures fall
// back to a default profile upstream, script failures abort the job.
type Gateway struct {
	providers        []Service
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
		logger:           opts.Logger.With().Str("component", "script_gateway").Logger(),
	}
}

// Analyze walks the chain until one provider profiles the product.
func (g *Gateway) Analyze(ctx context.Context, req AnalysisRequest, preferred string) (*Analysis, error) {
	var analysis *Analysis
	err := g.cascade(ctx, "analyze", req.JobID, preferred, func(ctx context.Context, p Service) error {
		a, err := p.Analyze(ctx, req)
		if err != nil {
			return err
		}
		analysis = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

// WriteScript walks the chain until one provider writes the voiceover copy.
func (g *Gateway) WriteScript(ctx context.Context, req ScriptRequest, preferred string) (*Script, error) {
	var s *Script
	err := g.cascade(ctx, "write script", req.JobID, preferred, func(ctx context.Context, p Service) error {
		out, err := p.WriteScript(ctx, req)
		if err != nil {
			return err
		}
		s = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (g *Gateway) cascade(ctx context.Context, operation, jobID, preferred string, call func(ctx context.Context, p Service) error) error {
	providers := orderServices(g.providers, preferred)

	var lastErr error
	attempted := false
	for _, p := range providers {
		if !p.Available() {
			g.logger.Debug().Str("provider", p.Name()).Str("job_id", jobID).Msg("provider unavailable, skipping")
			continue
		}
		attempted = true
		err := g.retry.Do(ctx, p.Name()+" "+operation, g.retryMaxAttempts, g.retryBaseDelay, func(ctx context.Context) error {
			return call(ctx, p)
		})
		if err == nil {
			g.logger.Info().Str("provider", p.Name()).Str("job_id", jobID).Str("operation", operation).Msg("script capability served")
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		lastErr = err
		g.logger.Warn().Str("provider", p.Name()).Str("job_id", jobID).Str("operation", operation).Err(err).Msg("provider failed, cascading")
	}

	if !attempted {
		return fmt.Errorf("%w: no script provider available", domain.ErrProviderUnavailable)
	}
	return fmt.Errorf("script provider chain exhausted: %w", lastErr)
}

func orderServices(providers []Service, preferred string) []Service {
	preferred = strings.TrimSpace(strings.ToLower(preferred))
	if preferred == "" {
		return providers
	}
	ordered := make([]Service, 0, len(providers))
	var rest []Service
	for _, p := range providers {
		if p.Name() == preferred {
			ordered = append(ordered, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(ordered, rest...)
}
