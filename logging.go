package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"lcdstat/config"
)

const (
	logTimestampLayout = "2006/01/02 15:04:05"
	logFileDateLayout  = "02-Jan-2006"
	maxLogBufferBytes  = 16 * 1024
	defaultRetainDays  = 7
)

// debugLogging gates per-tick detail lines.
var debugLogging atomic.Bool

func debugf(format string, args ...any) {
	if debugLogging.Load() {
		log.Printf(format, args...)
	}
}

type lineSink interface {
	WriteLine(line string, now time.Time)
	Close() error
}

// consoleSink prefixes each line with a UTC timestamp.
type consoleSink struct {
	w io.Writer
}

// Purpose: Write one log line to the console writer.
// Key aspects: Prefixes the UTC timestamp and always ends with a newline.
// Upstream: logFanout line dispatch.
// Downstream: io.Writer.Write.
func (s *consoleSink) WriteLine(line string, now time.Time) {
	if s == nil || s.w == nil {
		return
	}
	_, _ = io.WriteString(s.w, formatLogTimestamp(now)+" "+line+"\n")
}

func (s *consoleSink) Close() error {
	return nil
}

type logRotateHook func(prevDate time.Time, prevPath, newPath string)

// dailyFileSink appends to <dir>/DD-Mon-YYYY.log, opening a new file when
// the UTC date changes and deleting files older than the retention window.
type dailyFileSink struct {
	mu            sync.Mutex
	dir           string
	retentionDays int
	currentDate   string
	currentPath   string
	file          *os.File
	lastErrorAt   time.Time
	rotateHook    logRotateHook
}

// Purpose: Initialize a daily file sink with directory creation and cleanup.
// Key aspects: Defaults retention to 7 days and prunes old files up front.
// Upstream: setupLogging.
// Downstream: os.MkdirAll and cleanupOldLogs.
func newDailyFileSink(dir string, retentionDays int) (*dailyFileSink, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("log directory is empty")
	}
	if retentionDays <= 0 {
		retentionDays = defaultRetainDays
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %q: %w", dir, err)
	}
	if err := cleanupOldLogs(dir, time.Now().UTC(), retentionDays); err != nil {
		fmt.Fprintf(os.Stderr, "Logging: cleanup failed for %s: %v\n", dir, err)
	}
	return &dailyFileSink{dir: dir, retentionDays: retentionDays}, nil
}

// Purpose: Append a timestamped line to the current daily log file.
// Key aspects: Rotates on day change; the rotate hook runs on its own
// goroutine because the caller may hold the std logger's lock.
// Upstream: logFanout line dispatch.
// Downstream: os.OpenFile, file.WriteString and the rotate hook.
func (s *dailyFileSink) WriteLine(line string, now time.Time) {
	if s == nil {
		return
	}
	now = now.UTC()
	date := now.Format(logFileDateLayout)

	s.mu.Lock()
	var rotated *rotation
	if s.file == nil || s.currentDate != date {
		rotated = s.openLocked(date, now)
	}
	if s.file != nil {
		if _, err := s.file.WriteString(formatLogTimestamp(now) + " " + line + "\n"); err != nil {
			s.reportErrorLocked(now, fmt.Errorf("write failed: %w", err))
		}
	}
	hook := s.rotateHook
	s.mu.Unlock()

	if rotated != nil && hook != nil {
		go hook(rotated.prevDate, rotated.prevPath, rotated.newPath)
	}
}

type rotation struct {
	prevDate time.Time
	prevPath string
	newPath  string
}

// openLocked switches to the file for date. It returns the rotation only
// when an earlier file was open, so the first file of the process does not
// trigger the hook.
func (s *dailyFileSink) openLocked(date string, now time.Time) *rotation {
	var rot *rotation
	if s.currentDate != "" && s.currentDate != date {
		rot = &rotation{prevPath: s.currentPath}
		if parsed, err := time.ParseInLocation(logFileDateLayout, s.currentDate, time.UTC); err == nil {
			rot.prevDate = parsed
		}
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		s.reportErrorLocked(now, fmt.Errorf("failed to create log directory %q: %w", s.dir, err))
		return nil
	}
	path := filepath.Join(s.dir, logFileNameForDate(now))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		s.reportErrorLocked(now, fmt.Errorf("open failed for %s: %w", path, err))
		return nil
	}
	s.file = file
	s.currentDate = date
	s.currentPath = path
	if err := cleanupOldLogs(s.dir, now, s.retentionDays); err != nil {
		s.reportErrorLocked(now, fmt.Errorf("cleanup failed: %w", err))
	}
	if rot != nil {
		rot.newPath = path
	}
	return rot
}

func (s *dailyFileSink) SetRotateHook(hook logRotateHook) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.rotateHook = hook
	s.mu.Unlock()
}

// reportErrorLocked writes to stderr at most once a minute; the log itself
// is what failed.
func (s *dailyFileSink) reportErrorLocked(now time.Time, err error) {
	if !s.lastErrorAt.IsZero() && now.Sub(s.lastErrorAt) < time.Minute {
		return
	}
	s.lastErrorAt = now
	fmt.Fprintf(os.Stderr, "Logging: %v\n", err)
}

// Purpose: Close the currently open log file (if any).
// Key aspects: Safe for repeated calls and nil receivers.
// Upstream: logFanout.Close at shutdown.
// Downstream: os.File.Close.
func (s *dailyFileSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.currentDate = ""
	s.currentPath = ""
	return err
}

// logFanout is the log.Logger output. It splits writes into lines and
// hands each line to the console and file sinks.
type logFanout struct {
	mu      sync.Mutex
	buf     []byte
	console lineSink
	file    lineSink
}

func newLogFanout(console, file lineSink) *logFanout {
	return &logFanout{console: console, file: file}
}

// Purpose: Wire logging from config without blocking startup.
// Key aspects: Always returns a usable fanout; a file sink that cannot be
// opened is reported and left out. Sets the debug gate.
// Upstream: main startup.
// Downstream: newDailyFileSink and log.SetOutput.
func setupLogging(cfg config.LoggingConfig, console io.Writer) (*logFanout, error) {
	debugLogging.Store(cfg.Debug)
	fanout := newLogFanout(&consoleSink{w: console}, nil)
	if !cfg.Enabled {
		return fanout, nil
	}
	sink, err := newDailyFileSink(cfg.Dir, cfg.RetentionDays)
	if err != nil {
		return fanout, err
	}
	fanout.SetFileSink(sink)
	return fanout, nil
}

// Purpose: Swap the console sink.
// Key aspects: nil silences the console while a terminal display owns the
// screen.
// Upstream: openDisplay and its close func.
// Downstream: None.
func (f *logFanout) SetConsoleSink(w io.Writer) {
	if f == nil {
		return
	}
	var sink lineSink
	if w != nil {
		sink = &consoleSink{w: w}
	}
	f.mu.Lock()
	f.console = sink
	f.mu.Unlock()
}

func (f *logFanout) SetFileSink(sink lineSink) {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.file = sink
	f.mu.Unlock()
}

// Purpose: Install the day-change callback on the file sink.
// Key aspects: No-op without a file sink.
// Upstream: main startup (stats summary on rotation).
// Downstream: dailyFileSink.SetRotateHook.
func (f *logFanout) SetRotateHook(hook logRotateHook) {
	if f == nil {
		return
	}
	f.mu.Lock()
	sink := f.file
	f.mu.Unlock()
	if setter, ok := sink.(interface{ SetRotateHook(logRotateHook) }); ok {
		setter.SetRotateHook(hook)
	}
}

func (f *logFanout) Write(p []byte) (int, error) {
	if f == nil {
		return len(p), nil
	}
	f.mu.Lock()
	f.buf = append(f.buf, p...)
	data := f.buf
	var lines []string
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx == -1 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(data[:idx], "\r")))
		data = data[idx+1:]
	}
	// An unterminated line this long is flushed as-is.
	if len(data) > maxLogBufferBytes {
		if trimmed := string(bytes.TrimRight(data, "\r")); trimmed != "" {
			lines = append(lines, trimmed)
		}
		data = data[:0]
	}
	f.buf = data
	console, file := f.console, f.file
	f.mu.Unlock()

	now := time.Now().UTC()
	for _, line := range lines {
		if console != nil {
			console.WriteLine(line, now)
		}
		if file != nil {
			file.WriteLine(line, now)
		}
	}
	return len(p), nil
}

// WriteFileOnlyLine skips the console; used for per-tick frame dumps.
func (f *logFanout) WriteFileOnlyLine(line string, now time.Time) {
	if f == nil {
		return
	}
	f.mu.Lock()
	file := f.file
	f.mu.Unlock()
	if file != nil {
		file.WriteLine(line, now)
	}
}

func (f *logFanout) Close() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	console, file := f.console, f.file
	f.mu.Unlock()
	if console != nil {
		_ = console.Close()
	}
	if file != nil {
		return file.Close()
	}
	return nil
}

func formatLogTimestamp(now time.Time) string {
	return now.UTC().Format(logTimestampLayout)
}

func logFileNameForDate(now time.Time) string {
	return now.UTC().Format(logFileDateLayout) + ".log"
}

func parseLogFileDate(name string) (time.Time, bool) {
	if filepath.Ext(name) != ".log" {
		return time.Time{}, false
	}
	parsed, err := time.ParseInLocation(logFileDateLayout, strings.TrimSuffix(name, ".log"), time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// Purpose: Delete log files older than the retention window.
// Key aspects: Keeps today plus retentionDays-1 earlier days; files that
// do not parse as a log date are left alone.
// Upstream: newDailyFileSink and day rotation.
// Downstream: os.ReadDir and os.Remove.
func cleanupOldLogs(dir string, now time.Time, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	y, m, d := now.UTC().Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(retentionDays - 1))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		date, ok := parseLogFileDate(entry.Name())
		if ok && date.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}
