package lcd

import (
	"errors"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
)

func newSimTerminal(t *testing.T) (*Terminal, tcell.SimulationScreen) {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	term, err := NewTerminal(screen, Default2004, "lcdstat")
	if err != nil {
		t.Fatalf("NewTerminal: %v", err)
	}
	t.Cleanup(func() { _ = term.Close() })
	return term, screen
}

func TestTerminalWritesAtCursor(t *testing.T) {
	term, _ := newSimTerminal(t)
	if err := term.SetCursor(2, 3); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
	if err := term.WriteText([]byte{'A', GlyphFullBlock, GlyphDegree}); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if err := term.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	want := []rune{'A', '█', '°'}
	for i, w := range want {
		if got := term.Cell(2, 3+i); got != w {
			t.Fatalf("cell (2,%d): expected %q, got %q", 3+i, w, got)
		}
	}
	if got := term.Cell(2, 2); got != ' ' {
		t.Fatalf("expected untouched cell to stay blank, got %q", got)
	}
}

func TestTerminalDrawsBorder(t *testing.T) {
	_, screen := newSimTerminal(t)
	if r, _, _, _ := screen.GetContent(0, 0); r != tcell.RuneULCorner {
		t.Fatalf("expected upper-left corner, got %q", r)
	}
	if r, _, _, _ := screen.GetContent(21, 5); r != tcell.RuneLRCorner {
		t.Fatalf("expected lower-right corner at (21,5), got %q", r)
	}
	if r, _, _, _ := screen.GetContent(2, 0); r != 'l' {
		t.Fatalf("expected title in top border, got %q", r)
	}
}

func TestTerminalRejectsOverflow(t *testing.T) {
	term, _ := newSimTerminal(t)
	if err := term.SetCursor(0, 18); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
	if err := term.WriteText([]byte("abc")); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if err := term.SetCursor(0, 20); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds for column 20, got %v", err)
	}
}

func TestTerminalWriteAfterCloseFails(t *testing.T) {
	term, _ := newSimTerminal(t)
	_ = term.Close()
	var we *WriteError
	if err := term.WriteText([]byte("x")); !errors.As(err, &we) {
		t.Fatalf("expected WriteError after close, got %v", err)
	}
}

func TestTerminalWatchQuit(t *testing.T) {
	term, screen := newSimTerminal(t)
	done := make(chan struct{})
	term.WatchQuit(func() { close(done) })
	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("quit callback not invoked")
	}
}
