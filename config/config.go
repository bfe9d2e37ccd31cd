// Package config loads the lcdstat YAML configuration. Every key has a
// built-in default so the program runs unattended with no file at all.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Display backends.
const (
	BackendHD44780  = "hd44780"
	BackendTerminal = "terminal"
	BackendANSI     = "ansi"
	BackendNone     = "none"
)

// Display layouts.
const (
	LayoutText = "text"
	LayoutBars = "bars"
)

// Config represents the complete monitor configuration
type Config struct {
	Display  DisplayConfig  `yaml:"display"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
	Stats    StatsConfig    `yaml:"stats"`
	MQTT     MQTTConfig     `yaml:"mqtt"`

	// LoadedFrom is the file or directory the configuration was read from,
	// empty when only built-in defaults are in effect.
	LoadedFrom string `yaml:"-"`
}

// DisplayConfig selects and sizes the character display.
type DisplayConfig struct {
	Backend string    `yaml:"backend"`
	Rows    int       `yaml:"rows"`
	Cols    int       `yaml:"cols"`
	Layout  string    `yaml:"layout"`
	Pins    PinConfig `yaml:"pins"`
}

// PinConfig holds BCM GPIO numbers for the HD44780 8-bit bus.
type PinConfig struct {
	Data   []int `yaml:"data"`
	RS     int   `yaml:"rs"`
	Enable int   `yaml:"enable"`
}

// ScheduleConfig controls the tick cadence.
type ScheduleConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	// Align fires ticks on wall-clock multiples of the interval instead of
	// a fixed delay from startup.
	Align bool `yaml:"align"`
}

// MetricsConfig selects what the sampler reads.
type MetricsConfig struct {
	Disks                    []string `yaml:"disks"`
	Interface                string   `yaml:"interface"`
	TemperatureSensor        string   `yaml:"temperature_sensor"`
	QueryTimeoutMS           int      `yaml:"query_timeout_ms"`
	MaxNetworkBytesPerSecond uint64   `yaml:"max_network_bytes_per_second"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
	Debug         bool   `yaml:"debug"`
}

// StatsConfig controls the periodic summary log line.
type StatsConfig struct {
	// SummaryTicks logs a summary every N ticks; 0 disables it.
	SummaryTicks int `yaml:"summary_ticks"`
}

// MQTTConfig contains the optional snapshot mirror settings.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// Default returns the configuration used when no file overrides a key.
// Pin numbers match the reference wiring of a 2004 module on a Pi header.
func Default() *Config {
	return &Config{
		Display: DisplayConfig{
			Backend: BackendHD44780,
			Rows:    4,
			Cols:    20,
			Layout:  LayoutText,
			Pins: PinConfig{
				Data:   []int{15, 18, 23, 24, 25, 8, 7, 1},
				RS:     14,
				Enable: 4,
			},
		},
		Schedule: ScheduleConfig{
			IntervalSeconds: 2,
		},
		Metrics: MetricsConfig{
			Disks:                    []string{"/"},
			Interface:                "eth0",
			TemperatureSensor:        "cpu_thermal",
			QueryTimeoutMS:           1000,
			MaxNetworkBytesPerSecond: 82 * 1024 * 1024,
		},
		Logging: LoggingConfig{
			Enabled:       true,
			Dir:           "/var/log/lcdstat",
			RetentionDays: 10,
		},
		Stats: StatsConfig{
			SummaryTicks: 1800,
		},
		MQTT: MQTTConfig{
			Port:  1883,
			Topic: "lcdstat/snapshot",
		},
	}
}

// Purpose: Load configuration from a YAML file or a directory of them.
// Key aspects: Directory files (*.yaml, *.yml) merge in lexical order; keys
// absent from the files keep their defaults; the result is validated.
// Upstream: main.loadConfig, cmd/lcdtext and cmd/sysprobe.
// Downstream: yaml.v3 decoding, normalize and Validate.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config path: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = yamlFiles(path)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no YAML files in config directory %s: %w", path, fs.ErrNotExist)
		}
	}

	cfg := Default()
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", file, err)
		}
	}
	cfg.LoadedFrom = path
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (c *Config) normalize() {
	c.Display.Backend = strings.ToLower(strings.TrimSpace(c.Display.Backend))
	c.Display.Layout = strings.ToLower(strings.TrimSpace(c.Display.Layout))
	c.Metrics.Interface = strings.TrimSpace(c.Metrics.Interface)
	c.Metrics.TemperatureSensor = strings.TrimSpace(c.Metrics.TemperatureSensor)
	disks := c.Metrics.Disks[:0]
	for _, disk := range c.Metrics.Disks {
		if disk = strings.TrimSpace(disk); disk != "" {
			disks = append(disks, disk)
		}
	}
	c.Metrics.Disks = disks
}

// Purpose: Reject settings the process cannot run with.
// Key aspects: Reports the first bad setting only.
// Upstream: Load and the --backend override in main.
// Downstream: None.
func (c *Config) Validate() error {
	d := c.Display
	switch d.Backend {
	case BackendHD44780, BackendTerminal, BackendANSI, BackendNone:
	default:
		return fmt.Errorf("display.backend %q not recognized", d.Backend)
	}
	switch d.Layout {
	case LayoutText, LayoutBars:
	default:
		return fmt.Errorf("display.layout %q not recognized", d.Layout)
	}
	if d.Rows < 1 || d.Rows > 4 {
		return fmt.Errorf("display.rows must be between 1 and 4, got %d", d.Rows)
	}
	if d.Cols < 1 || d.Cols > 40 || d.Rows*d.Cols > 80 {
		return fmt.Errorf("display geometry %dx%d exceeds controller memory", d.Rows, d.Cols)
	}
	if d.Backend == BackendHD44780 {
		if err := d.Pins.validate(); err != nil {
			return err
		}
	}

	if c.Schedule.IntervalSeconds < 1 {
		return fmt.Errorf("schedule.interval_seconds must be at least 1, got %d", c.Schedule.IntervalSeconds)
	}

	m := c.Metrics
	if len(m.Disks) == 0 {
		return errors.New("metrics.disks must name at least one mount point")
	}
	if m.Interface == "" {
		return errors.New("metrics.interface is empty")
	}
	if m.QueryTimeoutMS < 0 {
		return fmt.Errorf("metrics.query_timeout_ms must not be negative, got %d", m.QueryTimeoutMS)
	}
	if m.MaxNetworkBytesPerSecond == 0 {
		return errors.New("metrics.max_network_bytes_per_second must be positive")
	}

	if c.Logging.Enabled && strings.TrimSpace(c.Logging.Dir) == "" {
		return errors.New("logging.dir is empty")
	}
	if c.Stats.SummaryTicks < 0 {
		return fmt.Errorf("stats.summary_ticks must not be negative, got %d", c.Stats.SummaryTicks)
	}

	if c.MQTT.Enabled {
		if strings.TrimSpace(c.MQTT.Broker) == "" {
			return errors.New("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
			return fmt.Errorf("mqtt.port %d out of range", c.MQTT.Port)
		}
		if strings.TrimSpace(c.MQTT.Topic) == "" {
			return errors.New("mqtt.topic is required when mqtt is enabled")
		}
	}
	return nil
}

func (p PinConfig) validate() error {
	if len(p.Data) != 8 {
		return fmt.Errorf("display.pins.data needs 8 pins (D0-D7), got %d", len(p.Data))
	}
	seen := make(map[int]string, 10)
	check := func(name string, pin int) error {
		if pin < 0 || pin > 27 {
			return fmt.Errorf("display.pins.%s: BCM pin %d out of range", name, pin)
		}
		if prev, ok := seen[pin]; ok {
			return fmt.Errorf("display.pins.%s: BCM pin %d already used by %s", name, pin, prev)
		}
		seen[pin] = name
		return nil
	}
	for i, pin := range p.Data {
		if err := check(fmt.Sprintf("data[%d]", i), pin); err != nil {
			return err
		}
	}
	if err := check("rs", p.RS); err != nil {
		return err
	}
	return check("enable", p.Enable)
}

// Interval returns the tick period.
func (s ScheduleConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// QueryTimeout returns the per-metric query deadline.
func (m MetricsConfig) QueryTimeout() time.Duration {
	return time.Duration(m.QueryTimeoutMS) * time.Millisecond
}

// Print displays the configuration
func (c *Config) Print(w io.Writer) {
	source := c.LoadedFrom
	if source == "" {
		source = "built-in defaults"
	}
	fmt.Fprintf(w, "Config: %s\n", source)
	fmt.Fprintf(w, "Display: %s %dx%d (layout %s)\n", c.Display.Backend, c.Display.Cols, c.Display.Rows, c.Display.Layout)
	if c.Display.Backend == BackendHD44780 {
		fmt.Fprintf(w, "Pins: data=%v rs=%d enable=%d\n", c.Display.Pins.Data, c.Display.Pins.RS, c.Display.Pins.Enable)
	}
	mode := "fixed delay"
	if c.Schedule.Align {
		mode = "aligned"
	}
	fmt.Fprintf(w, "Schedule: every %ds (%s)\n", c.Schedule.IntervalSeconds, mode)
	fmt.Fprintf(w, "Metrics: disks=%s interface=%s sensor=%s\n",
		strings.Join(c.Metrics.Disks, ","), c.Metrics.Interface, c.Metrics.TemperatureSensor)
	if c.Logging.Enabled {
		fmt.Fprintf(w, "Logging: %s (keep %d days)\n", c.Logging.Dir, c.Logging.RetentionDays)
	}
	if c.MQTT.Enabled {
		fmt.Fprintf(w, "MQTT: %s:%d (topic: %s)\n", c.MQTT.Broker, c.MQTT.Port, c.MQTT.Topic)
	}
}
