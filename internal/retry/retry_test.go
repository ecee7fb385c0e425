package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
)

func newRecordingExecutor(delays *[]time.Duration) *Executor {
	return &Executor{
		logger: zerolog.Nop(),
		sleep: func(ctx context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
	}
}

func TestDoSucceedsAfterTwoFailures(t *testing.T) {
	var delays []time.Duration
	e := newRecordingExecutor(&delays)

	calls := 0
	err := e.Do(context.Background(), "submit", 3, 100*time.Millisecond, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("boom %d", calls)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 invocations, got %d", calls)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected %d waits, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
}

func TestDoSurfacesLastError(t *testing.T) {
	var delays []time.Duration
	e := newRecordingExecutor(&delays)

	calls := 0
	errLast := errors.New("attempt three failed")
	err := e.Do(context.Background(), "submit", 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		if calls == 3 {
			return errLast
		}
		return fmt.Errorf("earlier failure %d", calls)
	})
	if calls != 3 {
		t.Fatalf("expected exactly 3 invocations, got %d", calls)
	}
	if !errors.Is(err, errLast) {
		t.Fatalf("expected the third attempt's error, got %v", err)
	}
}

func TestDoNoRetryAfterSuccess(t *testing.T) {
	var delays []time.Duration
	e := newRecordingExecutor(&delays)

	calls := 0
	err := e.Do(context.Background(), "poll", 5, time.Second, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("expected single successful call, got calls=%d err=%v", calls, err)
	}
	if len(delays) != 0 {
		t.Fatalf("expected no waits, got %v", delays)
	}
}

func TestDoDoesNotRetryDeclaredProviderFailures(t *testing.T) {
	var delays []time.Duration
	e := newRecordingExecutor(&delays)

	calls := 0
	err := e.Do(context.Background(), "submit", 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		return fmt.Errorf("%w: invalid api key", domain.ErrProviderFailure)
	})
	if calls != 1 {
		t.Fatalf("declared failure must not be retried, got %d calls", calls)
	}
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected provider failure to surface, got %v", err)
	}
	if len(delays) != 0 {
		t.Fatalf("expected no backoff waits, got %v", delays)
	}
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	e := NewExecutor(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	errOp := errors.New("transient")
	err := e.Do(ctx, "submit", 3, 10*time.Millisecond, func(ctx context.Context) error {
		calls++
		cancel()
		return errOp
	})
	if calls != 1 {
		t.Fatalf("expected cancellation after first attempt, got %d calls", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
