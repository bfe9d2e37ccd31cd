package main

import (
	"context"
	"testing"
	"time"
)

func TestNextBoundary(t *testing.T) {
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		at       time.Time
		interval time.Duration
		want     time.Time
	}{
		{base, 2 * time.Second, base.Add(2 * time.Second)},
		{base.Add(time.Second), 2 * time.Second, base.Add(2 * time.Second)},
		{base.Add(1999 * time.Millisecond), 2 * time.Second, base.Add(2 * time.Second)},
		{base.Add(59 * time.Second), 5 * time.Second, base.Add(60 * time.Second)},
	}
	for _, tc := range cases {
		if got := nextBoundary(tc.at, tc.interval); !got.Equal(tc.want) {
			t.Fatalf("nextBoundary(%s, %s) = %s, want %s", tc.at.Format(time.StampMilli), tc.interval, got.Format(time.StampMilli), tc.want.Format(time.StampMilli))
		}
	}
}

func TestFixedTicksFiresImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := fixedTicks(ctx, time.Hour)
	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatalf("expected an immediate first tick")
	}
	cancel()
	select {
	case _, ok := <-ticks:
		if ok {
			t.Fatalf("expected no second tick before the interval")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected tick channel to close after cancel")
	}
}

func TestAlignedTicksLandOnBoundaries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interval := 20 * time.Millisecond
	ticks := alignedTicks(ctx, interval, nil)
	for i := 0; i < 3; i++ {
		select {
		case tick := <-ticks:
			if !tick.Equal(tick.Truncate(interval)) {
				t.Fatalf("tick %d at %s is not on a %s boundary", i, tick.Format(time.StampMicro), interval)
			}
		case <-time.After(time.Second):
			t.Fatalf("tick %d did not arrive", i)
		}
	}
}

func TestOfferTickDropsWhenPending(t *testing.T) {
	out := make(chan time.Time, 1)
	first := time.Unix(1, 0)
	offerTick(out, first)
	offerTick(out, time.Unix(2, 0))
	if got := <-out; !got.Equal(first) {
		t.Fatalf("expected pending tick kept, got %s", got)
	}
	select {
	case extra := <-out:
		t.Fatalf("expected second tick dropped, got %s", extra)
	default:
	}
}

func TestSleepWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	if !sleepWithContext(ctx, time.Millisecond) {
		t.Fatalf("expected sleep to complete")
	}
	cancel()
	if sleepWithContext(ctx, time.Hour) {
		t.Fatalf("expected cancelled sleep to report false")
	}
	if sleepWithContext(ctx, 0) {
		t.Fatalf("expected zero sleep on a cancelled context to report false")
	}
}
