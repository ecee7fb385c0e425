// Package retry wraps idempotent network calls in bounded linear backoff.
// It must never wrap calls whose repetition has side effects; resumable
// publish phases carry their own safeguards instead.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
)

// Sleeper waits for d or until the context is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Executor retries operations with a delay of baseDelay times the attempt
// number: attempt 1 fails, wait baseDelay; attempt 2 fails, wait 2x; and so
// on. On exhaustion the last attempt's error is surfaced, not an aggregate.
type Executor struct {
	logger zerolog.Logger
	sleep  Sleeper
}

func NewExecutor(logger zerolog.Logger) *Executor {
	return &Executor{
		logger: logger.With().Str("component", "retry").Logger(),
		sleep:  sleepContext,
	}
}

// Do runs op up to maxAttempts times. maxAttempts below 1 is treated as a
// single attempt.
func (e *Executor) Do(ctx context.Context, name string, maxAttempts int, baseDelay time.Duration, op func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		// Declared provider failures (auth, quota, explicit rejection) are
		// never retried; the fallback chain handles them.
		if errors.Is(lastErr, domain.ErrProviderFailure) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		delay := time.Duration(attempt) * baseDelay
		e.logger.Warn().
			Str("operation", name).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Dur("delay", delay).
			Err(lastErr).
			Msg("attempt failed, backing off")
		if err := e.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s interrupted after attempt %d: %w", name, attempt, err)
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, maxAttempts, lastErr)
}
