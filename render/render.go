package render

import (
	"errors"
	"fmt"
	"strings"

	"lcdstat/lcd"
	"lcdstat/metrics"
)

// ErrTooManyLines and ErrLineTooLong reject text that does not fit the grid.
var (
	ErrTooManyLines = errors.New("too many lines for display")
	ErrLineTooLong  = errors.New("line too long for display")
)

// Renderer formats snapshots with a Layout and writes whole frames to a
// Display.
type Renderer struct {
	geom   lcd.Geometry
	layout Layout
}

// NewRenderer uses TextLayout when layout is nil.
func NewRenderer(geom lcd.Geometry, layout Layout) *Renderer {
	if layout == nil {
		layout = TextLayout{}
	}
	return &Renderer{geom: geom, layout: layout}
}

// Geometry returns the grid the renderer formats for.
func (r *Renderer) Geometry() lcd.Geometry {
	return r.geom
}

// Frame formats s to exactly Rows rows of exactly Cols bytes.
func (r *Renderer) Frame(s metrics.Snapshot) Frame {
	return r.normalize(r.layout.Format(s, r.geom))
}

func (r *Renderer) normalize(rows Frame) Frame {
	frame := make(Frame, r.geom.Rows)
	for i := range frame {
		var text string
		if i < len(rows) {
			text = rows[i]
		}
		frame[i] = FormatLine(text, r.geom.Cols)
	}
	return frame
}

// Render formats s and draws it.
func (r *Renderer) Render(d lcd.Display, s metrics.Snapshot) (Frame, error) {
	frame := r.Frame(s)
	return frame, r.Draw(d, frame)
}

// Draw writes every row of frame, addressing each row explicitly. The
// first failure abandons the frame; the caller retries with a full frame
// on the next tick.
func (r *Renderer) Draw(d lcd.Display, frame Frame) error {
	frame = r.normalize(frame)
	for row, line := range frame {
		if err := d.SetCursor(row, 0); err != nil {
			return &lcd.WriteError{Op: "set cursor", Row: row, Err: err}
		}
		if err := d.WriteText([]byte(line)); err != nil {
			return &lcd.WriteError{Op: "write", Row: row, Err: err}
		}
	}
	if f, ok := d.(lcd.Flusher); ok {
		if err := f.Flush(); err != nil {
			var we *lcd.WriteError
			if errors.As(err, &we) {
				return err
			}
			return &lcd.WriteError{Op: "flush", Row: -1, Err: err}
		}
	}
	return nil
}

// SplitText lays free text out on the grid. "\r\n", "\n\r" and "\r" all
// count as line breaks. Missing rows are blank.
func SplitText(text string, geom lcd.Geometry) (Frame, error) {
	lines := strings.Split(normalizeBreaks(text), "\n")
	if len(lines) > geom.Rows {
		return nil, fmt.Errorf("%w: %d lines, %d rows", ErrTooManyLines, len(lines), geom.Rows)
	}
	frame := make(Frame, geom.Rows)
	for i := range frame {
		if i >= len(lines) {
			frame[i] = FormatLine("", geom.Cols)
			continue
		}
		if len(lines[i]) > geom.Cols {
			return nil, fmt.Errorf("%w: line %d has %d bytes, %d columns", ErrLineTooLong, i+1, len(lines[i]), geom.Cols)
		}
		frame[i] = FormatLine(lines[i], geom.Cols)
	}
	return frame, nil
}

func normalizeBreaks(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '\r', '\n':
			if i+1 < len(text) && (text[i+1] == '\r' || text[i+1] == '\n') && text[i+1] != c {
				i++
			}
			b.WriteByte('\n')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// String joins the rows for logging, with ROM glyphs shown as Unicode.
func (f Frame) String() string {
	var b strings.Builder
	for i, row := range f {
		if i > 0 {
			b.WriteString(" | ")
		}
		for j := 0; j < len(row); j++ {
			b.WriteRune(lcd.GlyphRune(row[j]))
		}
	}
	return b.String()
}
