package render

import (
	"fmt"
	"math"
	"strings"

	"lcdstat/lcd"
	"lcdstat/metrics"
)

// Frame is one full screen: one string per row, each exactly as wide as
// the display. Bytes are HD44780 ROM codes.
type Frame []string

// Layout arranges a snapshot into rows. Rows may come back short or long;
// the Renderer normalises them to the geometry.
type Layout interface {
	Format(s metrics.Snapshot, g lcd.Geometry) Frame
}

// LayoutFor returns the layout configured by name: "bars" selects
// BarsLayout scaled to maxRate, anything else TextLayout.
func LayoutFor(name string, maxRate uint64) Layout {
	if name == "bars" {
		return BarsLayout{MaxRate: maxRate}
	}
	return TextLayout{}
}

// TextLayout labels every value:
//
//	CPU  42%  TMP  55.5C
//	MEM  60% DISK  75%
//	TX 1.0K/s RX 2.0K/s
//	IP 192.168.1.20
type TextLayout struct{}

func (TextLayout) Format(s metrics.Snapshot, g lcd.Geometry) Frame {
	cpu, temp, unit := na4, na5, " "
	if s.Has(metrics.MetricCPU) {
		cpu = Percent(s.CPUPercent)
	}
	if s.Has(metrics.MetricTemperature) && !math.IsNaN(s.CPUTempC) {
		temp, unit = Temp(s.CPUTempC), "C"
	}
	mem, disk := na4, na4
	if s.Has(metrics.MetricMemory) {
		mem = Percent(s.MemPercent)
	}
	if d, ok := s.Disk(); ok {
		disk = Percent(d.Percent)
	}

	net := "NET" + na5
	if s.Has(metrics.MetricNetwork) {
		sent, recv := s.Rates()
		net = "TX" + Bytes(sent) + "/s RX" + Bytes(recv) + "/s"
	}

	var last string
	switch {
	case s.IPv4 != "":
		last = "IP " + s.IPv4
	case s.Has(metrics.MetricUptime):
		last = "UP " + Uptime(s.Uptime)
	default:
		last = "IP" + na5
	}

	return Frame{
		"CPU " + cpu + "  TMP " + temp + unit,
		"MEM " + mem + " DISK " + disk,
		net,
		last,
	}
}

// BarsLayout draws CPU, network and disk load as bars of full-block
// glyphs under a temperature and address row:
//
//	55.5C   192.168.1.20
//	C████████
//	N█
//	D███████████████
type BarsLayout struct {
	// MaxRate is the combined throughput, in bytes per second, drawn as a
	// full network bar.
	MaxRate uint64
}

func (l BarsLayout) Format(s metrics.Snapshot, g lcd.Geometry) Frame {
	temp := "N/A"
	if s.Has(metrics.MetricTemperature) && !math.IsNaN(s.CPUTempC) {
		temp = strings.TrimSpace(Temp(s.CPUTempC)) + "C"
	}
	head := temp
	if pad := g.Cols - len(temp); pad > 0 {
		head = temp + fmt.Sprintf("%*s", pad, s.IPv4)
	}

	var cpu, net, disk float64
	if s.Has(metrics.MetricCPU) {
		cpu = s.CPUPercent
	}
	if s.Has(metrics.MetricNetwork) && l.MaxRate > 0 {
		sent, recv := s.Rates()
		net = 100 * math.Min(float64(sent+recv)/float64(l.MaxRate), 1)
	}
	if d, ok := s.Disk(); ok {
		disk = d.Percent
	}

	return Frame{
		head,
		bar('C', cpu, g.Cols),
		bar('N', net, g.Cols),
		bar('D', disk, g.Cols),
	}
}

// bar is a label followed by round((width-1)*pct/100) full blocks.
func bar(label byte, pct float64, width int) string {
	cells := width - 1
	if cells < 0 {
		cells = 0
	}
	n := int(math.RoundToEven(float64(cells) * metrics.ClampPercent(pct) / 100))
	return string(label) + strings.Repeat(string([]byte{lcd.GlyphFullBlock}), n)
}
