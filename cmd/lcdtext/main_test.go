package main

import (
	"strings"
	"testing"
)

func TestReadTextPrefersArgs(t *testing.T) {
	got, err := readText([]string{"one", "two"}, strings.NewReader("ignored"))
	if err != nil || got != "one\ntwo" {
		t.Fatalf("expected args joined by newline, got %q err=%v", got, err)
	}
}

func TestReadTextFromStdin(t *testing.T) {
	got, err := readText(nil, strings.NewReader("hello\r\nworld\n"))
	if err != nil || got != "hello\r\nworld" {
		t.Fatalf("expected trailing break dropped, got %q err=%v", got, err)
	}
}

func TestLoadConfigDefaultsWithoutPath(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Display.Rows != 4 || cfg.Display.Cols != 20 {
		t.Fatalf("expected 20x4 defaults, got %dx%d", cfg.Display.Cols, cfg.Display.Rows)
	}
}
