package metrics

import (
	"context"
	"errors"
	"log"
	"time"
)

// Options configures a Sampler.
type Options struct {
	// Disks are the mount points to report, in display order.
	Disks []string
	// Interface is the network interface for counters and the IPv4 address.
	Interface string
	// QueryTimeout bounds each individual query; zero means no bound.
	QueryTimeout time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type counterBaseline struct {
	Counters
	at time.Time
	ok bool
}

// Sampler produces one Snapshot per call. It owns the network counter
// baseline, so a Sampler must not be shared by concurrent callers.
type Sampler struct {
	source  Source
	disks   []string
	iface   string
	timeout time.Duration
	now     func() time.Time

	baseline counterBaseline
	last     time.Time
	// failing holds the metrics that failed on the previous sample so
	// unavailability is logged once per outage instead of every tick.
	failing Metric
}

// NewSampler wires a Source to the configured metric targets.
func NewSampler(source Source, opts Options) *Sampler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	disks := append([]string(nil), opts.Disks...)
	return &Sampler{
		source:  source,
		disks:   disks,
		iface:   opts.Interface,
		timeout: opts.QueryTimeout,
		now:     now,
	}
}

// Sample queries every metric. A failed query marks the metric in
// Snapshot.Missing and leaves its field zero; the other metrics are still
// read. Sample never returns an error.
func (s *Sampler) Sample(ctx context.Context) Snapshot {
	now := s.now()
	snap := Snapshot{At: now}
	if !s.last.IsZero() {
		snap.Elapsed = now.Sub(s.last)
	}
	s.last = now

	var errs []*UnavailableError
	fail := func(m Metric, err error) {
		snap.Missing |= m
		errs = append(errs, &UnavailableError{Metric: m, Err: err})
	}

	if v, err := query(ctx, s.timeout, s.source.CPUPercent); err != nil {
		fail(MetricCPU, err)
	} else {
		snap.CPUPercent = ClampPercent(v)
	}

	if v, err := query(ctx, s.timeout, s.source.Temperature); err != nil {
		fail(MetricTemperature, err)
	} else {
		snap.CPUTempC = v
	}

	if v, err := query(ctx, s.timeout, s.source.Memory); err != nil {
		fail(MetricMemory, err)
	} else {
		snap.MemUsed, snap.MemTotal = v.Used, v.Total
		snap.MemPercent = ClampPercent(v.Percent)
		if snap.MemPercent == 0 && v.Total > 0 {
			snap.MemPercent = percentOf(v.Used, v.Total)
		}
	}

	snap.Disks = make([]DiskUsage, 0, len(s.disks))
	var diskErrs []error
	for _, path := range s.disks {
		usage, err := query(ctx, s.timeout, func(ctx context.Context) (DiskUsage, error) {
			return s.source.Disk(ctx, path)
		})
		if err != nil {
			diskErrs = append(diskErrs, err)
			snap.Disks = append(snap.Disks, DiskUsage{Path: path})
			continue
		}
		usage.Path = path
		usage.Percent = ClampPercent(usage.Percent)
		usage.Available = true
		snap.Disks = append(snap.Disks, usage)
	}
	if len(diskErrs) > 0 {
		fail(MetricDisk, errors.Join(diskErrs...))
	}

	s.sampleNetwork(ctx, now, &snap, fail)

	if v, err := query(ctx, s.timeout, func(ctx context.Context) (string, error) {
		return s.source.IPv4(ctx, s.iface)
	}); err != nil {
		fail(MetricAddress, err)
	} else {
		snap.IPv4 = v
	}

	if v, err := query(ctx, s.timeout, s.source.Uptime); err != nil {
		fail(MetricUptime, err)
	} else {
		snap.Uptime = v
	}

	s.logTransitions(snap.Missing, errs)
	return snap
}

func (s *Sampler) sampleNetwork(ctx context.Context, now time.Time, snap *Snapshot, fail func(Metric, error)) {
	c, err := query(ctx, s.timeout, func(ctx context.Context) (Counters, error) {
		return s.source.NetCounters(ctx, s.iface)
	})
	if err != nil {
		// The baseline stays put so the next good read covers the gap.
		fail(MetricNetwork, err)
		return
	}
	if s.baseline.ok {
		snap.NetSent = Delta(s.baseline.Sent, c.Sent)
		snap.NetRecv = Delta(s.baseline.Recv, c.Recv)
		snap.NetWindow = now.Sub(s.baseline.at)
	}
	s.baseline = counterBaseline{Counters: c, at: now, ok: true}
}

func (s *Sampler) logTransitions(missing Metric, errs []*UnavailableError) {
	for _, ue := range errs {
		if s.failing&ue.Metric == 0 {
			log.Printf("Metrics: %v", ue)
		}
	}
	if recovered := s.failing &^ missing; recovered != 0 {
		log.Printf("Metrics: %s available again", recovered)
	}
	s.failing = missing
}

func query[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(qctx)
}
