package audiomoth

import (
	"context"
	"time"
)

// Clock abstracts the passage of time for the retry/backoff loops the
// XMODEM session drives, so a fake implementation can stand in for the
// wall clock in tests without changing the code under test.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

// realClock is the default Clock, backed by the time package.
type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// systemClock is the Clock every production session uses.
var systemClock Clock = realClock{}

// sleepCtx sleeps for d against the system clock, or returns ctx.Err()
// early if ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	return sleepCtxClock(ctx, d, systemClock)
}

// sleepCtxClock sleeps for d against clock, or returns ctx.Err() early if
// ctx is cancelled first. A nil clock falls back to systemClock.
func sleepCtxClock(ctx context.Context, d time.Duration, clock Clock) error {
	if clock == nil {
		clock = systemClock
	}
	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
