package main

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"lcdstat/internal/ratelimit"
	"lcdstat/lcd"
	"lcdstat/metrics"
	"lcdstat/render"
	"lcdstat/stats"
)

type hostStub struct {
	counters metrics.Counters
	noTemp   bool
}

func (h *hostStub) CPUPercent(context.Context) (float64, error) { return 42, nil }

func (h *hostStub) Temperature(context.Context) (float64, error) {
	if h.noTemp {
		return 0, metrics.ErrNoSensor
	}
	return 55.5, nil
}

func (h *hostStub) Memory(context.Context) (metrics.Memory, error) {
	return metrics.Memory{Used: 600, Total: 1000, Percent: 60}, nil
}

func (h *hostStub) Disk(_ context.Context, path string) (metrics.DiskUsage, error) {
	return metrics.DiskUsage{Path: path, Used: 75, Total: 100, Percent: 75, Available: true}, nil
}

func (h *hostStub) NetCounters(context.Context, string) (metrics.Counters, error) {
	return h.counters, nil
}

func (h *hostStub) IPv4(context.Context, string) (string, error) { return "10.0.0.7", nil }

func (h *hostStub) Uptime(context.Context) (time.Duration, error) { return time.Hour, nil }

type lcdRecorder struct {
	rows      [4][]byte
	row       int
	failWrite bool
}

func (r *lcdRecorder) SetCursor(row, col int) error {
	r.row = row
	r.rows[row] = r.rows[row][:0]
	return nil
}

func (r *lcdRecorder) WriteText(b []byte) error {
	if r.failWrite {
		return errors.New("bus stuck")
	}
	r.rows[r.row] = append(r.rows[r.row], b...)
	return nil
}

func (r *lcdRecorder) line(i int) string {
	return string(r.rows[i])
}

type countingPublisher struct {
	calls int
	fail  bool
}

func (p *countingPublisher) Publish(metrics.Snapshot) error {
	p.calls++
	if p.fail {
		return errors.New("broker gone")
	}
	return nil
}

func newTestMonitor(src *hostStub, display lcd.Display) *monitor {
	clock := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	return &monitor{
		sampler: metrics.NewSampler(src, metrics.Options{
			Disks:     []string{"/"},
			Interface: "eth0",
			Now: func() time.Time {
				clock = clock.Add(time.Second)
				return clock
			},
		}),
		renderer: render.NewRenderer(lcd.Default2004, render.TextLayout{}),
		display:  display,
		tracker:  stats.NewTracker(),
	}
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestMonitorShowsRatesAfterSecondTick(t *testing.T) {
	captureLog(t)
	src := &hostStub{counters: metrics.Counters{Sent: 10000, Recv: 50000}}
	display := &lcdRecorder{}
	m := newTestMonitor(src, display)
	ctx := context.Background()

	if err := m.tick(ctx, time.Now()); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if got := display.line(2); got != "TX   0B/s RX   0B/s " {
		t.Fatalf("expected zero rates on the first tick, got %q", got)
	}

	src.counters.Sent += 1024
	src.counters.Recv += 2048
	if err := m.tick(ctx, time.Now()); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	want := []string{
		"CPU  42%  TMP  55.5C",
		"MEM  60% DISK  75%  ",
		"TX 1.0K/s RX 2.0K/s ",
		"IP 10.0.0.7         ",
	}
	for i, w := range want {
		if got := display.line(i); got != w {
			t.Fatalf("row %d = %q, want %q", i, got, w)
		}
	}
	if m.tracker.Ticks() != 2 || m.tracker.RenderFailures() != 0 {
		t.Fatalf("unexpected tracker state ticks=%d failures=%d", m.tracker.Ticks(), m.tracker.RenderFailures())
	}
}

func TestMonitorRecordsDisplayFailure(t *testing.T) {
	logs := captureLog(t)
	display := &lcdRecorder{failWrite: true}
	m := newTestMonitor(&hostStub{}, display)

	err := m.tick(context.Background(), time.Now())
	var werr *lcd.WriteError
	if !errors.As(err, &werr) || werr.Row != 0 {
		t.Fatalf("expected write error on row 0, got %v", err)
	}
	if m.tracker.RenderFailures() != 1 || m.tracker.ConsecutiveFailures() != 1 {
		t.Fatalf("expected one recorded failure, got %d/%d", m.tracker.RenderFailures(), m.tracker.ConsecutiveFailures())
	}
	if !strings.Contains(logs.String(), "frame abandoned (1 in a row)") {
		t.Fatalf("expected abandon log, got %q", logs.String())
	}

	display.failWrite = false
	if err := m.tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("recovery tick: %v", err)
	}
	if m.tracker.ConsecutiveFailures() != 0 {
		t.Fatalf("expected consecutive failures cleared after a good frame")
	}
}

func TestMonitorHeadlessLogsFrame(t *testing.T) {
	logs := captureLog(t)
	m := newTestMonitor(&hostStub{noTemp: true}, nil)

	if err := m.tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("headless tick: %v", err)
	}
	out := logs.String()
	if !strings.Contains(out, "Frame: CPU  42%  TMP   N/A ") {
		t.Fatalf("expected frame in log, got %q", out)
	}
	if got := m.tracker.GetUnavailableCounts()["temperature"]; got != 1 {
		t.Fatalf("expected temperature counted unavailable once, got %d", got)
	}
}

func TestMonitorCountsPublishes(t *testing.T) {
	logs := captureLog(t)
	pub := &countingPublisher{}
	m := newTestMonitor(&hostStub{}, &lcdRecorder{})
	m.publisher = pub
	m.publishFailures = ratelimit.NewCounter(time.Minute)
	m.summaryEvery = 2

	_ = m.tick(context.Background(), time.Now())
	pub.fail = true
	_ = m.tick(context.Background(), time.Now())

	ok, failed := m.tracker.Published()
	if pub.calls != 2 || ok != 1 || failed != 1 {
		t.Fatalf("expected 1 ok and 1 failed publish over 2 calls, got %d/%d over %d", ok, failed, pub.calls)
	}
	if !strings.Contains(logs.String(), "MQTT: publish failed (1 so far): broker gone") {
		t.Fatalf("expected throttled publish failure log, got %q", logs.String())
	}
	if !strings.Contains(logs.String(), "Stats: 2 ticks") {
		t.Fatalf("expected summary after two ticks, got %q", logs.String())
	}
}

func TestMonitorRunStopsWhenTicksClose(t *testing.T) {
	captureLog(t)
	m := newTestMonitor(&hostStub{}, &lcdRecorder{})
	ticks := make(chan time.Time, 1)
	ticks <- time.Now()
	close(ticks)

	done := make(chan struct{})
	go func() {
		m.run(context.Background(), ticks)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after the tick channel closed")
	}
	if m.tracker.Ticks() != 1 {
		t.Fatalf("expected one tick, got %d", m.tracker.Ticks())
	}
}
