package lcd

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func writeRow(t *testing.T, d Display, row int, text string) {
	t.Helper()
	if err := d.SetCursor(row, 0); err != nil {
		t.Fatalf("SetCursor(%d): %v", row, err)
	}
	if err := d.WriteText([]byte(text)); err != nil {
		t.Fatalf("WriteText(%d): %v", row, err)
	}
}

func TestANSIRepaintsOnChangeOnly(t *testing.T) {
	var out bytes.Buffer
	a := NewANSI(&out, Geometry{Rows: 2, Cols: 4}, true)

	writeRow(t, a, 0, "ab")
	writeRow(t, a, 1, "cd")
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	first := out.String()
	if !strings.HasPrefix(first, "\x1b[2J\x1b[1;1Hab  \x1b[2;1Hcd  ") {
		t.Fatalf("unexpected first paint %q", first)
	}

	out.Reset()
	writeRow(t, a, 0, "ab")
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected identical frame to be skipped, wrote %q", out.String())
	}
	if a.Skipped() != 1 {
		t.Fatalf("expected 1 skipped flush, got %d", a.Skipped())
	}

	writeRow(t, a, 1, "zz")
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if !strings.Contains(out.String(), "zz") || strings.Contains(out.String(), "\x1b[2J") {
		t.Fatalf("expected repaint without clear, got %q", out.String())
	}
}

func TestANSIMapsGlyphs(t *testing.T) {
	var out bytes.Buffer
	a := NewANSI(&out, Geometry{Rows: 1, Cols: 3}, false)
	if err := a.WriteText([]byte{GlyphFullBlock, GlyphFullBlock, 0x07}); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if !strings.Contains(out.String(), "██ ") {
		t.Fatalf("expected block glyphs and blanked control byte, got %q", out.String())
	}
	if got := a.Row(0); got[0] != GlyphFullBlock {
		t.Fatalf("expected raw ROM code kept in grid, got %v", got)
	}
}

type flakyWriter struct {
	fails int
	out   bytes.Buffer
}

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fails > 0 {
		w.fails--
		return 0, errors.New("broken pipe")
	}
	return w.out.Write(p)
}

func TestANSIFlushFailureIsRetried(t *testing.T) {
	w := &flakyWriter{fails: 1}
	a := NewANSI(w, Geometry{Rows: 1, Cols: 2}, true)
	var we *WriteError
	if err := a.Flush(); !errors.As(err, &we) || we.Op != "flush" {
		t.Fatalf("expected flush WriteError, got %v", err)
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if !strings.HasPrefix(w.out.String(), "\x1b[2J") {
		t.Fatalf("expected the retried frame to clear the screen, got %q", w.out.String())
	}
	if a.Skipped() != 0 {
		t.Fatalf("expected the failed frame not to count as drawn")
	}
}
