// Command sysprobe prints what the host exposes to lcdstat: temperature
// sensor keys, interfaces with their addresses, mounted filesystems and one
// sampled snapshot. Use it to pick metrics.temperature_sensor,
// metrics.interface and metrics.disks.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/sensors"
	"github.com/spf13/pflag"

	"lcdstat/config"
	"lcdstat/lcd"
	"lcdstat/metrics"
	"lcdstat/publish"
	"lcdstat/render"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "config file or directory to sample with (default built-in settings)")
	window := pflag.Duration("window", time.Second, "gap between the two samples used for rates")
	asJSON := pflag.Bool("json", false, "print the snapshot as the MQTT payload instead of the host profile")
	pflag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	ctx, cancel := context.WithTimeout(context.Background(), *window+30*time.Second)
	defer cancel()

	hostname := "unknown"
	if info, err := host.InfoWithContext(ctx); err == nil {
		hostname = info.Hostname
		if !*asJSON {
			fmt.Printf("host %s: %s %s, kernel %s (%s)\n", info.Hostname, info.Platform, info.PlatformVersion, info.KernelVersion, info.KernelArch)
		}
	}

	if !*asJSON {
		printSensors(ctx)
		printInterfaces(ctx)
		printMounts(ctx)
	}

	sampler := metrics.NewSampler(metrics.NewHostSource(cfg.Metrics.TemperatureSensor), metrics.Options{
		Disks:        cfg.Metrics.Disks,
		Interface:    cfg.Metrics.Interface,
		QueryTimeout: cfg.Metrics.QueryTimeout(),
	})
	sampler.Sample(ctx)
	time.Sleep(*window)
	snap := sampler.Sample(ctx)

	if *asJSON {
		payload, err := publish.Encode(snap, hostname)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	fmt.Printf("\nsample over %s (missing: %s)\n", snap.NetWindow, snap.Missing)
	fmt.Printf("  memory %s of %s\n", humanize.IBytes(snap.MemUsed), humanize.IBytes(snap.MemTotal))
	for _, d := range snap.Disks {
		if d.Available {
			fmt.Printf("  disk %s %s of %s (%.1f%%)\n", d.Path, humanize.IBytes(d.Used), humanize.IBytes(d.Total), d.Percent)
		}
	}
	sent, recv := snap.Rates()
	fmt.Printf("  %s tx %s/s rx %s/s\n", cfg.Metrics.Interface, humanize.IBytes(sent), humanize.IBytes(recv))

	geom := lcd.Geometry{Rows: cfg.Display.Rows, Cols: cfg.Display.Cols}
	layout := render.LayoutFor(cfg.Display.Layout, cfg.Metrics.MaxNetworkBytesPerSecond)
	fmt.Println("\nframe:")
	for _, row := range render.NewRenderer(geom, layout).Frame(snap) {
		fmt.Printf("  |%s|\n", printable(row))
	}
}

func printSensors(ctx context.Context) {
	temps, err := sensors.TemperaturesWithContext(ctx)
	if err != nil && len(temps) == 0 {
		fmt.Printf("\nsensors: %v\n", err)
		return
	}
	sort.Slice(temps, func(i, j int) bool { return temps[i].SensorKey < temps[j].SensorKey })
	fmt.Printf("\nsensors (%d):\n", len(temps))
	for _, t := range temps {
		fmt.Printf("  %-32s %6.1fC\n", t.SensorKey, t.Temperature)
	}
}

func printInterfaces(ctx context.Context) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		fmt.Printf("\ninterfaces: %v\n", err)
		return
	}
	counters := map[string]psnet.IOCountersStat{}
	if stats, err := psnet.IOCountersWithContext(ctx, true); err == nil {
		for _, st := range stats {
			counters[st.Name] = st
		}
	}
	fmt.Printf("\ninterfaces (%d):\n", len(ifaces))
	for _, ifc := range ifaces {
		c := counters[ifc.Name]
		fmt.Printf("  %-12s sent %-10s recv %-10s", ifc.Name, humanize.IBytes(c.BytesSent), humanize.IBytes(c.BytesRecv))
		for _, a := range ifc.Addrs {
			fmt.Printf(" %s", a.Addr)
		}
		fmt.Println()
	}
}

func printMounts(ctx context.Context) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		fmt.Printf("\nmounts: %v\n", err)
		return
	}
	fmt.Printf("\nmounts (%d):\n", len(parts))
	for _, p := range parts {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			fmt.Printf("  %-20s %-8s %s\n", p.Mountpoint, p.Fstype, err)
			continue
		}
		fmt.Printf("  %-20s %-8s %s free of %s\n", p.Mountpoint, p.Fstype, humanize.IBytes(usage.Free), humanize.IBytes(usage.Total))
	}
}

func printable(row string) string {
	out := make([]rune, 0, len(row))
	for i := 0; i < len(row); i++ {
		out = append(out, lcd.GlyphRune(row[i]))
	}
	return string(out)
}
