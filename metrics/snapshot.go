// Package metrics samples host resource usage once per tick.
package metrics

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Metric identifies one queried value. Metrics combine as a bit set.
type Metric uint16

const (
	MetricCPU Metric = 1 << iota
	MetricTemperature
	MetricMemory
	MetricDisk
	MetricNetwork
	MetricAddress
	MetricUptime
)

// AllMetrics lists every metric in display order.
var AllMetrics = []Metric{
	MetricCPU,
	MetricTemperature,
	MetricMemory,
	MetricDisk,
	MetricNetwork,
	MetricAddress,
	MetricUptime,
}

var metricNames = map[Metric]string{
	MetricCPU:         "cpu",
	MetricTemperature: "temperature",
	MetricMemory:      "memory",
	MetricDisk:        "disk",
	MetricNetwork:     "network",
	MetricAddress:     "address",
	MetricUptime:      "uptime",
}

func (m Metric) String() string {
	if name, ok := metricNames[m]; ok {
		return name
	}
	var parts []string
	for _, single := range AllMetrics {
		if m&single != 0 {
			parts = append(parts, metricNames[single])
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// UnavailableError reports a metric whose query failed. The sampler
// substitutes the field's zero value and keeps going.
type UnavailableError struct {
	Metric Metric
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Metric, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// DiskUsage is the usage of one mount point.
type DiskUsage struct {
	Path      string
	Used      uint64
	Total     uint64
	Percent   float64
	Available bool
}

// Snapshot is one tick's worth of host metrics. It is built fresh by
// Sampler.Sample and never reused.
type Snapshot struct {
	At time.Time
	// Elapsed is the time since the previous sample, zero on the first one.
	Elapsed time.Duration

	CPUPercent float64
	CPUTempC   float64

	MemUsed    uint64
	MemTotal   uint64
	MemPercent float64

	Disks []DiskUsage

	// NetSent and NetRecv are byte counts over NetWindow, the time since the
	// last successful counter read. Both are zero on the first read.
	NetSent   uint64
	NetRecv   uint64
	NetWindow time.Duration

	IPv4   string
	Uptime time.Duration

	// Missing has a bit set for every metric that could not be read.
	Missing Metric
}

// Has reports whether m was read successfully.
func (s Snapshot) Has(m Metric) bool {
	return s.Missing&m == 0
}

// Disk returns the first configured mount point, if any.
func (s Snapshot) Disk() (DiskUsage, bool) {
	if len(s.Disks) == 0 {
		return DiskUsage{}, false
	}
	return s.Disks[0], s.Disks[0].Available
}

// Rates converts the network deltas to bytes per second. A snapshot with
// no measured window reports the raw deltas.
func (s Snapshot) Rates() (sent, recv uint64) {
	if s.NetWindow <= 0 {
		return s.NetSent, s.NetRecv
	}
	secs := s.NetWindow.Seconds()
	return uint64(math.Round(float64(s.NetSent) / secs)), uint64(math.Round(float64(s.NetRecv) / secs))
}

// Delta returns cur-prev for a cumulative counter, or 0 when the counter
// went backwards (reset or wrap).
func Delta(prev, cur uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

// ClampPercent limits v to [0,100]; NaN becomes 0.
func ClampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func percentOf(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return ClampPercent(float64(used) / float64(total) * 100)
}
