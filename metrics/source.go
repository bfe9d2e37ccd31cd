package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/sensors"
)

var (
	// ErrNoSensor is returned when no temperature sensor matches the configured key.
	ErrNoSensor = errors.New("no matching temperature sensor")
	// ErrNoInterface is returned when the configured interface does not exist.
	ErrNoInterface = errors.New("interface not found")
	// ErrNoAddress is returned when the interface exists but has no IPv4 address.
	ErrNoAddress = errors.New("no IPv4 address")
)

// Memory is the virtual memory reading.
type Memory struct {
	Used    uint64
	Total   uint64
	Percent float64
}

// Counters are cumulative interface byte counters since boot.
type Counters struct {
	Sent uint64
	Recv uint64
}

// Source answers one query per metric. Implementations must honour ctx
// cancellation where the underlying call allows it.
type Source interface {
	CPUPercent(ctx context.Context) (float64, error)
	Temperature(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (Memory, error)
	Disk(ctx context.Context, path string) (DiskUsage, error)
	NetCounters(ctx context.Context, iface string) (Counters, error)
	IPv4(ctx context.Context, iface string) (string, error)
	Uptime(ctx context.Context) (time.Duration, error)
}

// HostSource reads the local host through gopsutil.
type HostSource struct {
	sensorKey string
}

// NewHostSource returns a Source for the running host. sensorKey selects
// the temperature sensor; "-" and "_" are treated alike and a prefix of the
// gopsutil sensor key is enough ("cpu_thermal" matches "cpu_thermal_input").
func NewHostSource(sensorKey string) *HostSource {
	return &HostSource{sensorKey: normalizeSensorKey(sensorKey)}
}

func normalizeSensorKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "-", "_")
}

// CPUPercent returns utilisation since the previous call. The first call
// after start measures since boot.
func (h *HostSource) CPUPercent(ctx context.Context) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, errors.New("cpu: empty reading")
	}
	return pcts[0], nil
}

func (h *HostSource) Temperature(ctx context.Context) (float64, error) {
	temps, err := sensors.TemperaturesWithContext(ctx)
	if err != nil && len(temps) == 0 {
		return 0, err
	}
	// gopsutil reports unreadable hwmon entries as a Warnings error next to
	// the readings that did succeed.
	for _, t := range temps {
		if strings.HasPrefix(normalizeSensorKey(t.SensorKey), h.sensorKey) {
			return t.Temperature, nil
		}
	}
	return 0, fmt.Errorf("%w: %q among %d sensors", ErrNoSensor, h.sensorKey, len(temps))
}

func (h *HostSource) Memory(ctx context.Context) (Memory, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Memory{}, err
	}
	return Memory{Used: vm.Used, Total: vm.Total, Percent: vm.UsedPercent}, nil
}

func (h *HostSource) Disk(ctx context.Context, path string) (DiskUsage, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return DiskUsage{Path: path}, err
	}
	return DiskUsage{
		Path:      path,
		Used:      usage.Used,
		Total:     usage.Total,
		Percent:   usage.UsedPercent,
		Available: true,
	}, nil
}

func (h *HostSource) NetCounters(ctx context.Context, iface string) (Counters, error) {
	stats, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return Counters{}, err
	}
	for _, st := range stats {
		if st.Name == iface {
			return Counters{Sent: st.BytesSent, Recv: st.BytesRecv}, nil
		}
	}
	return Counters{}, fmt.Errorf("%w: %s", ErrNoInterface, iface)
}

func (h *HostSource) IPv4(ctx context.Context, iface string) (string, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return "", err
	}
	for _, ifc := range ifaces {
		if ifc.Name != iface {
			continue
		}
		for _, a := range ifc.Addrs {
			if ip, ok := parseIPv4(a.Addr); ok {
				return ip, nil
			}
		}
		return "", fmt.Errorf("%w on %s", ErrNoAddress, iface)
	}
	return "", fmt.Errorf("%w: %s", ErrNoInterface, iface)
}

// parseIPv4 accepts either "a.b.c.d/nn" or a bare address.
func parseIPv4(s string) (string, bool) {
	var addr netip.Addr
	if prefix, err := netip.ParsePrefix(s); err == nil {
		addr = prefix.Addr()
	} else if a, err := netip.ParseAddr(s); err == nil {
		addr = a
	} else {
		return "", false
	}
	if !addr.Is4() {
		return "", false
	}
	return addr.String(), true
}

func (h *HostSource) Uptime(ctx context.Context) (time.Duration, error) {
	secs, err := host.UptimeWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}
