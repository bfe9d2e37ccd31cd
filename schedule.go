package main

import (
	"context"
	"time"
)

// Tick sources deliver on a channel of capacity one. A tick that arrives
// while the previous one is still pending is dropped, so an overrunning
// tick makes the next one late instead of queueing a backlog.

// fixedTicks fires immediately, then every interval.
func fixedTicks(ctx context.Context, interval time.Duration) <-chan time.Time {
	out := make(chan time.Time, 1)
	go func() {
		defer close(out)
		out <- time.Now()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				offerTick(out, now)
			}
		}
	}()
	return out
}

// Purpose: Emit ticks on wall-clock multiples of interval.
// Key aspects: A 2s interval ticks at :00, :02, :04 and so on regardless of
// when the process started; a pending tick is never queued twice.
// Upstream: main.run when schedule.align is set.
// Downstream: nextBoundary, sleepWithContext and offerTick.
func alignedTicks(ctx context.Context, interval time.Duration, now func() time.Time) <-chan time.Time {
	if now == nil {
		now = time.Now
	}
	out := make(chan time.Time, 1)
	go func() {
		defer close(out)
		for {
			next := nextBoundary(now(), interval)
			if !sleepWithContext(ctx, next.Sub(now())) {
				return
			}
			offerTick(out, next)
		}
	}()
	return out
}

// nextBoundary returns the first multiple of interval strictly after t.
// Intervals that divide a minute line up with the start of every minute.
func nextBoundary(t time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return t
	}
	return t.Truncate(interval).Add(interval)
}

func offerTick(out chan<- time.Time, t time.Time) {
	select {
	case out <- t:
	default:
	}
}

// sleepWithContext reports false when ctx ended before d elapsed.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
