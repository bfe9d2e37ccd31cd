package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"lcdstat/config"
	"lcdstat/lcd"
	"lcdstat/render"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lcdstat.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFromEnv(t *testing.T) {
	path := writeConfig(t, "display:\n  backend: none\n")
	t.Setenv(envConfigPath, path)

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Display.Backend != config.BackendNone || cfg.LoadedFrom != path {
		t.Fatalf("expected env config loaded, got backend=%q from %q", cfg.Display.Backend, cfg.LoadedFrom)
	}
}

func TestLoadConfigFlagBeatsEnv(t *testing.T) {
	t.Setenv(envConfigPath, filepath.Join(t.TempDir(), "missing.yaml"))
	path := writeConfig(t, "schedule:\n  interval_seconds: 5\n")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Schedule.IntervalSeconds != 5 {
		t.Fatalf("expected interval from flag config, got %d", cfg.Schedule.IntervalSeconds)
	}
}

func TestLoadConfigNamedPathMustExist(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error for a named path, got %v", err)
	}
}

func TestRunRejectsUnknownBackend(t *testing.T) {
	captureLog(t)
	path := writeConfig(t, "display:\n  backend: none\n")
	if code := run([]string{"--config", path, "--backend", "vfd"}); code != 1 {
		t.Fatalf("expected exit 1 for an unknown backend, got %d", code)
	}
}

func TestOpenDisplayHeadless(t *testing.T) {
	captureLog(t)
	cfg := config.Default()
	cfg.Display.Backend = config.BackendNone

	d, closeFn, err := openDisplay(cfg, lcd.Default2004, newLogFanout(nil, nil), func() {})
	if err != nil {
		t.Fatalf("openDisplay: %v", err)
	}
	if d != nil {
		t.Fatalf("expected no display when headless, got %T", d)
	}
	closeFn()
}

func TestOpenDisplayTerminalNeedsTTY(t *testing.T) {
	if isStdoutTTY() {
		t.Skip("stdout is a terminal")
	}
	captureLog(t)
	cfg := config.Default()
	cfg.Display.Backend = config.BackendANSI

	if _, _, err := openDisplay(cfg, lcd.Default2004, newLogFanout(nil, nil), func() {}); err == nil {
		t.Fatalf("expected ansi backend to require a terminal")
	}
}

func TestConfiguredLayoutNamesSelectLayouts(t *testing.T) {
	cfg := config.Default()
	if _, ok := render.LayoutFor(cfg.Display.Layout, cfg.Metrics.MaxNetworkBytesPerSecond).(render.TextLayout); !ok {
		t.Fatalf("expected text layout by default")
	}
	bars, ok := render.LayoutFor(config.LayoutBars, cfg.Metrics.MaxNetworkBytesPerSecond).(render.BarsLayout)
	if !ok || bars.MaxRate != cfg.Metrics.MaxNetworkBytesPerSecond {
		t.Fatalf("expected bars layout with the configured max rate, got %#v", bars)
	}
}
