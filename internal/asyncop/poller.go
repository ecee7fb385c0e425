// Package asyncop implements the submit-then-poll protocol shared by video
// generation, resumable upload acknowledgement, and publish status checks.
package asyncop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
)

// ErrTimeout marks a poll budget exhausted without a terminal answer. It is
// deliberately distinct from domain.ErrProviderFailure so operators can tell
// "provider said no" from "provider never answered".
var ErrTimeout = errors.New("operation timed out")

// PollState enumerates normalized poll outcomes.
type PollState string

const (
	StatePending PollState = "pending"
	StateDone    PollState = "done"
	StateFailed  PollState = "failed"
)

// PollStatus is the provider-neutral poll answer. Progress is best-effort
// and may stay zero for providers that do not report it.
type PollStatus struct {
	State       PollState
	Progress    int
	ArtifactRef string
	Reason      string
}

func Pending(progress int) PollStatus {
	return PollStatus{State: StatePending, Progress: progress}
}

func Done(artifactRef string) PollStatus {
	return PollStatus{State: StateDone, ArtifactRef: artifactRef}
}

func Failed(reason string) PollStatus {
	return PollStatus{State: StateFailed, Reason: reason}
}

// SubmitFunc starts the remote operation and returns its handle.
type SubmitFunc[H any] func(ctx context.Context) (H, error)

// PollFunc checks the remote operation once.
type PollFunc[H any] func(ctx context.Context, handle H) (PollStatus, error)

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

// Poller drives submit-then-poll loops. The sleep suspends only the owning
// goroutine between polls.
type Poller struct {
	logger zerolog.Logger
	sleep  Sleeper
}

func NewPoller(logger zerolog.Logger) *Poller {
	return &Poller{
		logger: logger.With().Str("component", "asyncop").Logger(),
		sleep:  sleepContext,
	}
}

// AwaitCompletion submits the operation, then polls every interval until the
// provider reports done or failed, or maxAttempts polls have produced no
// terminal state. A declared failure is returned immediately and is never
// polled again; transport errors on individual polls consume an attempt and
// the loop continues.
func AwaitCompletion[H any](ctx context.Context, p *Poller, name string, submit SubmitFunc[H], poll PollFunc[H], interval time.Duration, maxAttempts int) (string, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	handle, err := submit(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: submit: %w", name, err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := p.sleep(ctx, interval); err != nil {
			return "", fmt.Errorf("%s: interrupted at poll %d: %w", name, attempt, err)
		}
		status, err := poll(ctx, handle)
		if err != nil {
			lastErr = err
			p.logger.Warn().Str("operation", name).Int("poll", attempt).Err(err).Msg("poll failed, continuing")
			continue
		}
		switch status.State {
		case StateDone:
			return status.ArtifactRef, nil
		case StateFailed:
			return "", fmt.Errorf("%s: %w: %s", name, domain.ErrProviderFailure, status.Reason)
		default:
			p.logger.Debug().Str("operation", name).Int("poll", attempt).Int("progress", status.Progress).Msg("still pending")
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("%s: %w after %d polls (last poll error: %v)", name, ErrTimeout, maxAttempts, lastErr)
	}
	return "", fmt.Errorf("%s: %w after %d polls", name, ErrTimeout, maxAttempts)
}
