// Package stats tracks tick, render and per-metric failure counters for the
// periodic summary log line.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Tracker tracks monitor counters. All methods are safe for concurrent use.
type Tracker struct {
	// per-metric counters live in sync.Map + atomic.Uint64 so the summary
	// reader never blocks the tick loop
	unavailable sync.Map // metric name -> *atomic.Uint64

	start               atomic.Int64
	ticks               atomic.Uint64
	renderFailures      atomic.Uint64
	consecutiveFailures atomic.Uint64
	lastSuccess         atomic.Int64
	published           atomic.Uint64
	publishFailures     atomic.Uint64
	frameSkips          atomic.Uint64
}

// NewTracker creates a new stats tracker
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// RecordTick counts one completed tick, successful or not.
func (t *Tracker) RecordTick() {
	t.ticks.Add(1)
}

// RecordRender records the outcome of drawing a frame.
func (t *Tracker) RecordRender(now time.Time, err error) {
	if err != nil {
		t.renderFailures.Add(1)
		t.consecutiveFailures.Add(1)
		return
	}
	t.consecutiveFailures.Store(0)
	t.lastSuccess.Store(now.UnixNano())
}

// IncrementUnavailable counts one failed read of the named metric.
func (t *Tracker) IncrementUnavailable(metric string) {
	metric = strings.TrimSpace(metric)
	if metric == "" {
		return
	}
	incrementCounter(&t.unavailable, metric)
}

// RecordPublish records one MQTT publish attempt.
func (t *Tracker) RecordPublish(err error) {
	if err != nil {
		t.publishFailures.Add(1)
		return
	}
	t.published.Add(1)
}

// SetFrameSkips stores how many repaints the display skipped because the
// frame had not changed.
func (t *Tracker) SetFrameSkips(n uint64) {
	t.frameSkips.Store(n)
}

// Ticks returns the number of ticks run.
func (t *Tracker) Ticks() uint64 {
	return t.ticks.Load()
}

// RenderFailures returns the cumulative number of abandoned frames.
func (t *Tracker) RenderFailures() uint64 {
	return t.renderFailures.Load()
}

// ConsecutiveFailures returns the abandoned frames since the last good one.
func (t *Tracker) ConsecutiveFailures() uint64 {
	return t.consecutiveFailures.Load()
}

// LastSuccess returns when a frame was last drawn, zero if never.
func (t *Tracker) LastSuccess() time.Time {
	ns := t.lastSuccess.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Published returns successful and failed publish counts.
func (t *Tracker) Published() (ok, failed uint64) {
	return t.published.Load(), t.publishFailures.Load()
}

// GetUnavailableCounts returns a copy of per-metric failure counts
func (t *Tracker) GetUnavailableCounts() map[string]uint64 {
	counts := make(map[string]uint64)
	t.unavailable.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return counts
}

// GetUptime returns how long the tracker has been running
func (t *Tracker) GetUptime() time.Duration {
	start := t.start.Load()
	return time.Since(time.Unix(0, start))
}

// Purpose: Render the tracker as one line for the periodic stats log.
// Key aspects: Counts, unavailable metrics, last frame age and uptime.
// Upstream: monitor summary cadence, shutdown and the log rotate hook.
// Downstream: formatMapCounts, formatUptime and humanize.
func (t *Tracker) SummaryLine() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stats: %s ticks, %s render failures", humanize.Comma(int64(t.ticks.Load())), humanize.Comma(int64(t.renderFailures.Load())))
	if last := t.LastSuccess(); !last.IsZero() {
		fmt.Fprintf(&b, ", last frame %s", humanize.Time(last))
	} else {
		b.WriteString(", no frame drawn yet")
	}
	fmt.Fprintf(&b, ", up %s", formatUptime(t.GetUptime()))
	if skips := t.frameSkips.Load(); skips > 0 {
		fmt.Fprintf(&b, ", %s unchanged frames", humanize.Comma(int64(skips)))
	}
	if ok, failed := t.Published(); ok+failed > 0 {
		fmt.Fprintf(&b, ", published %s/%s", humanize.Comma(int64(ok)), humanize.Comma(int64(ok+failed)))
	}
	b.WriteString(" | ")
	b.WriteString(formatMapCounts("Unavailable", &t.unavailable))
	return b.String()
}

// formatUptime renders hours and minutes as HH:MM; hours keep growing past 99.
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

func incrementCounter(m *sync.Map, key string) {
	if key == "" {
		return
	}
	val, _ := m.LoadOrStore(key, &atomic.Uint64{})
	counter := val.(*atomic.Uint64)
	counter.Add(1)
}

func formatMapCounts(label string, m *sync.Map) string {
	type kv struct {
		key   string
		count uint64
	}
	var entries []kv
	m.Range(func(key, value any) bool {
		entries = append(entries, kv{key: key.(string), count: value.(*atomic.Uint64).Load()})
		return true
	})
	if len(entries) == 0 {
		return label + ": none"
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count == entries[j].count {
			return entries[i].key < entries[j].key
		}
		return entries[i].count > entries[j].count
	})
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s=%s", e.key, humanize.Comma(int64(e.count))))
	}
	return label + ": " + strings.Join(parts, " ")
}
