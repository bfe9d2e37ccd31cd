package lcd

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/zeebo/xxh3"
)

// ANSI keeps the grid in memory and repaints it on an io.Writer with
// cursor-addressing escapes. Identical frames are not rewritten.
type ANSI struct {
	mu        sync.Mutex
	w         io.Writer
	cur       cursor
	grid      [][]byte
	clear     bool
	cleared   bool
	lastHash  uint64
	drawn     bool
	renderBuf bytes.Buffer
	skipped   int
}

// NewANSI returns an ANSI display writing to w. With clearScreen set the
// first repaint wipes the terminal; otherwise the grid is drawn over
// whatever is already there starting at the home position.
func NewANSI(w io.Writer, geom Geometry, clearScreen bool) *ANSI {
	grid := make([][]byte, geom.Rows)
	for i := range grid {
		grid[i] = bytes.Repeat([]byte{' '}, geom.Cols)
	}
	return &ANSI{
		w:     w,
		cur:   cursor{geom: geom},
		grid:  grid,
		clear: clearScreen,
	}
}

func (a *ANSI) SetCursor(row, col int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cur.set(row, col)
}

func (a *ANSI) WriteText(b []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	start, err := a.cur.advance(len(b))
	if err != nil {
		return err
	}
	copy(a.grid[a.cur.row][start:], b)
	return nil
}

// Flush repaints the terminal when the grid changed since the last repaint.
func (a *ANSI) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	h := xxh3.New()
	for _, row := range a.grid {
		_, _ = h.Write(row)
	}
	sum := h.Sum64()
	if a.drawn && sum == a.lastHash {
		a.skipped++
		return nil
	}

	a.renderBuf.Reset()
	if a.clear && !a.cleared {
		a.renderBuf.WriteString("\x1b[2J")
	}
	for i, row := range a.grid {
		fmt.Fprintf(&a.renderBuf, "\x1b[%d;1H", i+1)
		for _, c := range row {
			a.renderBuf.WriteRune(GlyphRune(c))
		}
	}
	a.renderBuf.WriteString("\x1b[K\n")
	if _, err := a.renderBuf.WriteTo(a.w); err != nil {
		return &WriteError{Op: "flush", Row: -1, Err: err}
	}
	a.lastHash = sum
	a.drawn = true
	a.cleared = true
	return nil
}

// Skipped reports how many flushes found an unchanged grid.
func (a *ANSI) Skipped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.skipped
}

// Row returns a copy of one grid row, in ROM codes.
func (a *ANSI) Row(row int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]byte(nil), a.grid[row]...)
}
