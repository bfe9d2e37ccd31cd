// Package ratelimit throttles repeated log lines for a failure that persists
// across ticks.
package ratelimit

import (
	"sync/atomic"
	"time"
)

// Counter counts events and allows a log line at most once per interval.
// It is safe for concurrent use.
type Counter struct {
	interval time.Duration
	lastLog  atomic.Int64
	total    atomic.Uint64
}

// NewCounter returns a Counter; interval <= 0 allows every event.
func NewCounter(interval time.Duration) *Counter {
	return &Counter{interval: interval}
}

// Inc counts one event at now and reports the running total and whether
// the caller should log it.
func (c *Counter) Inc(now time.Time) (uint64, bool) {
	if c == nil {
		return 0, false
	}
	total := c.total.Add(1)
	if c.interval <= 0 {
		return total, true
	}
	ns := now.UnixNano()
	last := c.lastLog.Load()
	if last != 0 && ns-last < c.interval.Nanoseconds() {
		return total, false
	}
	return total, c.lastLog.CompareAndSwap(last, ns)
}

// Total returns the number of events counted.
func (c *Counter) Total() uint64 {
	if c == nil {
		return 0
	}
	return c.total.Load()
}
