package main

import (
	"context"
	"log"
	"time"

	"lcdstat/internal/ratelimit"
	"lcdstat/lcd"
	"lcdstat/metrics"
	"lcdstat/render"
	"lcdstat/stats"
)

// snapshotPublisher mirrors snapshots off-box; see package publish.
type snapshotPublisher interface {
	Publish(metrics.Snapshot) error
}

type frameSink interface {
	WriteFileOnlyLine(line string, now time.Time)
}

// skipCounter is implemented by displays that skip unchanged frames.
type skipCounter interface {
	Skipped() int
}

// monitor runs the sample -> render -> record -> publish pipeline once per
// tick. It is driven from a single goroutine.
type monitor struct {
	sampler   *metrics.Sampler
	renderer  *render.Renderer
	display   lcd.Display // nil when headless
	tracker   *stats.Tracker
	publisher snapshotPublisher
	frames    frameSink
	// publishFailures throttles MQTT failure logging; nil logs nothing.
	publishFailures *ratelimit.Counter
	// summaryEvery logs the tracker summary every N ticks; 0 disables it.
	summaryEvery uint64
}

// Purpose: Sample, render, draw and publish one frame.
// Key aspects: Returns the display error, if any; the frame is abandoned
// and the next tick redraws everything.
// Upstream: monitor.run and the --once path in main.
// Downstream: metrics.Sampler, render.Renderer, lcd.Display, the publisher
// and stats.Tracker.
func (m *monitor) tick(ctx context.Context, now time.Time) error {
	snap := m.sampler.Sample(ctx)
	for _, metric := range metrics.AllMetrics {
		if !snap.Has(metric) {
			m.tracker.IncrementUnavailable(metric.String())
		}
	}

	frame := m.renderer.Frame(snap)
	var err error
	if m.display != nil {
		err = m.renderer.Draw(m.display, frame)
		if sc, ok := m.display.(skipCounter); ok {
			m.tracker.SetFrameSkips(uint64(sc.Skipped()))
		}
	}
	m.tracker.RecordRender(now, err)
	if err != nil {
		if n := m.tracker.ConsecutiveFailures(); n == 1 || n%30 == 0 {
			log.Printf("Display: frame abandoned (%d in a row): %v", n, err)
		}
	}
	switch {
	case m.display == nil:
		log.Print("Frame: " + frame.String())
	case debugLogging.Load():
		m.logFrame(frame, now)
	}
	debugf("Tick: cpu=%.1f%% temp=%.1fC mem=%.1f%% tx=%d rx=%d window=%s missing=%s",
		snap.CPUPercent, snap.CPUTempC, snap.MemPercent, snap.NetSent, snap.NetRecv, snap.NetWindow, snap.Missing)

	if m.publisher != nil {
		perr := m.publisher.Publish(snap)
		m.tracker.RecordPublish(perr)
		if perr != nil {
			if n, ok := m.publishFailures.Inc(now); ok {
				log.Printf("MQTT: publish failed (%d so far): %v", n, perr)
			}
		}
	}

	m.tracker.RecordTick()
	if m.summaryEvery > 0 && m.tracker.Ticks()%m.summaryEvery == 0 {
		log.Print(m.tracker.SummaryLine())
	}
	return err
}

// logFrame keeps per-tick frame dumps out of the console, which a
// terminal display may own.
func (m *monitor) logFrame(frame render.Frame, now time.Time) {
	line := "Frame: " + frame.String()
	if m.frames != nil {
		m.frames.WriteFileOnlyLine(line, now)
		return
	}
	log.Print(line)
}

// Purpose: Drive tick from the schedule channel.
// Key aspects: Stops when ctx ends or ticks closes.
// Upstream: main.run.
// Downstream: monitor.tick.
func (m *monitor) run(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case now, ok := <-ticks:
			if !ok {
				return
			}
			_ = m.tick(ctx, now)
		}
	}
}
