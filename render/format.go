// Package render turns a metrics snapshot into fixed-width rows and writes
// them to a character display.
package render

import (
	"fmt"
	"math"
	"strings"
	"time"

	"lcdstat/metrics"
)

// Placeholders for a metric that could not be read, sized to match the
// field they replace.
const (
	na4 = " N/A"
	na5 = "  N/A"
)

// FormatLine drops control bytes, then truncates or pads text with spaces
// to exactly width bytes.
func FormatLine(text string, width int) string {
	if width <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(width)
	for i := 0; i < len(text) && b.Len() < width; i++ {
		c := text[i]
		if c < 0x20 {
			continue
		}
		b.WriteByte(c)
	}
	for b.Len() < width {
		b.WriteByte(' ')
	}
	return b.String()
}

// Percent renders v as a 4-byte field, "  7%" through "100%".
func Percent(v float64) string {
	return fmt.Sprintf("%3d%%", int(math.Round(metrics.ClampPercent(v))))
}

// Temp renders a Celsius reading as a 5-byte field with one decimal.
func Temp(v float64) string {
	switch {
	case math.IsNaN(v):
		return na5
	case v < -99.9:
		v = -99.9
	case v > 999.9:
		v = 999.9
	}
	return fmt.Sprintf("%5.1f", v)
}

var byteUnits = []byte{'K', 'M', 'G', 'T', 'P', 'E'}

// Bytes renders n as a 5-byte field using binary units: "1023B", " 1.0K",
// " 512K", "  24M".
func Bytes(n uint64) string {
	if n < 1024 {
		return fmt.Sprintf("%4dB", n)
	}
	v := float64(n) / 1024
	unit := 0
	for v >= 999.5 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	if v < 9.95 {
		return fmt.Sprintf("%4.1f%c", v, byteUnits[unit])
	}
	return fmt.Sprintf("%4.0f%c", v, byteUnits[unit])
}

// Uptime renders d compactly: "3d04h", "5h12m", "42m".
func Uptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)
	if days > 0 {
		return fmt.Sprintf("%dd%02dh", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh%02dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
