// Package lcd drives fixed-grid character displays: an HD44780 module wired
// to GPIO, or a terminal stand-in for development away from the board.
package lcd

import (
	"errors"
	"fmt"
)

// ErrOutOfBounds is returned when a cursor position or a write would leave
// the grid.
var ErrOutOfBounds = errors.New("outside display geometry")

// Display is a row/column addressable character grid. Bytes written are
// HD44780 ROM character codes; each call writes at the current cursor and
// advances it.
type Display interface {
	SetCursor(row, col int) error
	WriteText(b []byte) error
}

// Flusher is implemented by displays that buffer writes until the frame is
// complete.
type Flusher interface {
	Flush() error
}

// Geometry is the visible grid size.
type Geometry struct {
	Rows int
	Cols int
}

// Default2004 is the 20 column by 4 row module.
var Default2004 = Geometry{Rows: 4, Cols: 20}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Cols, g.Rows)
}

// Contains reports whether (row, col) addresses a visible cell.
func (g Geometry) Contains(row, col int) bool {
	return row >= 0 && row < g.Rows && col >= 0 && col < g.Cols
}

// WriteError reports a failed display operation. Row is -1 for operations
// not tied to a row.
type WriteError struct {
	Op  string
	Row int
	Err error
}

func (e *WriteError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("lcd %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("lcd %s row %d: %v", e.Op, e.Row, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// cursor tracks the write position shared by every backend.
type cursor struct {
	geom Geometry
	row  int
	col  int
}

func (c *cursor) set(row, col int) error {
	if !c.geom.Contains(row, col) {
		return fmt.Errorf("cursor %d,%d %w %s", row, col, ErrOutOfBounds, c.geom)
	}
	c.row, c.col = row, col
	return nil
}

// advance reserves n cells on the current row and returns the starting column.
func (c *cursor) advance(n int) (int, error) {
	if c.col+n > c.geom.Cols {
		return 0, fmt.Errorf("%d bytes at column %d %w %s", n, c.col, ErrOutOfBounds, c.geom)
	}
	start := c.col
	c.col += n
	return start, nil
}
