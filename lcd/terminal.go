package lcd

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// Terminal draws the character grid inside a box on a tcell screen.
type Terminal struct {
	mu     sync.Mutex
	screen tcell.Screen
	cur    cursor
	style  tcell.Style
	closed bool
	once   sync.Once
}

// OpenTerminal takes over the controlling terminal.
func OpenTerminal(geom Geometry, title string) (*Terminal, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("terminal screen: %w", err)
	}
	return NewTerminal(screen, geom, title)
}

// NewTerminal initialises screen and draws the empty grid. Tests pass a
// tcell simulation screen.
func NewTerminal(screen tcell.Screen, geom Geometry, title string) (*Terminal, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("terminal init: %w", err)
	}
	t := &Terminal{
		screen: screen,
		cur:    cursor{geom: geom},
		style:  tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorGreenYellow),
	}
	screen.Clear()
	t.drawFrame(title)
	for row := 0; row < geom.Rows; row++ {
		for col := 0; col < geom.Cols; col++ {
			screen.SetContent(col+1, row+1, ' ', nil, t.style)
		}
	}
	screen.Show()
	return t, nil
}

func (t *Terminal) drawFrame(title string) {
	g := t.cur.geom
	border := tcell.StyleDefault
	right, bottom := g.Cols+1, g.Rows+1
	for x := 1; x < right; x++ {
		t.screen.SetContent(x, 0, tcell.RuneHLine, nil, border)
		t.screen.SetContent(x, bottom, tcell.RuneHLine, nil, border)
	}
	for y := 1; y < bottom; y++ {
		t.screen.SetContent(0, y, tcell.RuneVLine, nil, border)
		t.screen.SetContent(right, y, tcell.RuneVLine, nil, border)
	}
	t.screen.SetContent(0, 0, tcell.RuneULCorner, nil, border)
	t.screen.SetContent(right, 0, tcell.RuneURCorner, nil, border)
	t.screen.SetContent(0, bottom, tcell.RuneLLCorner, nil, border)
	t.screen.SetContent(right, bottom, tcell.RuneLRCorner, nil, border)
	for i, r := range []rune(title) {
		if i+2 >= right {
			break
		}
		t.screen.SetContent(i+2, 0, r, nil, border.Bold(true))
	}
}

func (t *Terminal) SetCursor(row, col int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur.set(row, col)
}

func (t *Terminal) WriteText(b []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return &WriteError{Op: "write", Row: t.cur.row, Err: fmt.Errorf("terminal closed")}
	}
	start, err := t.cur.advance(len(b))
	if err != nil {
		return err
	}
	for i, c := range b {
		t.screen.SetContent(start+i+1, t.cur.row+1, GlyphRune(c), nil, t.style)
	}
	return nil
}

// Flush makes the written cells visible.
func (t *Terminal) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.screen.Show()
	}
	return nil
}

// Cell returns the rune shown at a grid position.
func (t *Terminal) Cell(row, col int) rune {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, _, _, _ := t.screen.GetContent(col+1, row+1)
	return r
}

// WatchQuit calls quit once when the user presses Ctrl-C, Esc or q. The
// screen holds the terminal in raw mode, so Ctrl-C never becomes SIGINT.
func (t *Terminal) WatchQuit(quit func()) {
	go func() {
		for {
			ev := t.screen.PollEvent()
			if ev == nil {
				return
			}
			key, ok := ev.(*tcell.EventKey)
			if !ok {
				continue
			}
			if key.Key() == tcell.KeyCtrlC || key.Key() == tcell.KeyEscape || key.Rune() == 'q' {
				quit()
				return
			}
		}
	}()
}

// Close restores the terminal.
func (t *Terminal) Close() error {
	t.once.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		t.screen.Fini()
	})
	return nil
}
