// Program lcdstat samples host metrics (CPU, temperature, memory, disk,
// network, address) and shows them on a 20x4 HD44780 character LCD wired to
// the GPIO header, or on a terminal stand-in while developing.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"lcdstat/config"
	"lcdstat/internal/ratelimit"
	"lcdstat/lcd"
	"lcdstat/metrics"
	"lcdstat/publish"
	"lcdstat/render"
	"lcdstat/stats"
)

const (
	defaultConfigPath = "/etc/lcdstat"
	envConfigPath     = "LCDSTAT_CONFIG_PATH"
)

// startupError is fatal: the process logs it and exits non-zero.
type startupError struct {
	stage string
	err   error
}

func (e *startupError) Error() string {
	return fmt.Sprintf("%s: %v", e.stage, e.err)
}

func (e *startupError) Unwrap() error {
	return e.err
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("lcdstat", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "config file or directory (default $"+envConfigPath+", then "+defaultConfigPath+")")
	once := flags.Bool("once", false, "sample and draw a single frame, then exit")
	backend := flags.StringP("backend", "b", "", "override display.backend: hd44780, terminal, ansi or none")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err == nil && *backend != "" {
		cfg.Display.Backend = strings.ToLower(strings.TrimSpace(*backend))
		err = cfg.Validate()
	}
	if err != nil {
		log.Printf("Startup: %v", &startupError{stage: "config", err: err})
		return 1
	}

	fanout, err := setupLogging(cfg.Logging, os.Stdout)
	log.SetFlags(0)
	log.SetOutput(fanout)
	defer fanout.Close()
	if err != nil {
		log.Printf("Logging: file sink disabled: %v", err)
	}
	cfg.Print(fanout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	geom := lcd.Geometry{Rows: cfg.Display.Rows, Cols: cfg.Display.Cols}
	display, closeDisplay, err := openDisplay(cfg, geom, fanout, stop)
	if err != nil {
		log.Printf("Startup: %v", &startupError{stage: "display", err: err})
		return 1
	}
	defer closeDisplay()

	tracker := stats.NewTracker()
	fanout.SetRotateHook(func(_ time.Time, prevPath, newPath string) {
		log.Printf("Logging: rotated %s -> %s; %s", filepath.Base(prevPath), filepath.Base(newPath), tracker.SummaryLine())
	})

	m := &monitor{
		sampler: metrics.NewSampler(metrics.NewHostSource(cfg.Metrics.TemperatureSensor), metrics.Options{
			Disks:        cfg.Metrics.Disks,
			Interface:    cfg.Metrics.Interface,
			QueryTimeout: cfg.Metrics.QueryTimeout(),
		}),
		renderer:     render.NewRenderer(geom, render.LayoutFor(cfg.Display.Layout, cfg.Metrics.MaxNetworkBytesPerSecond)),
		display:      display,
		tracker:      tracker,
		frames:       fanout,
		summaryEvery: uint64(cfg.Stats.SummaryTicks),
	}

	if cfg.MQTT.Enabled {
		pub, err := publish.Connect(publish.Options{
			Broker:   cfg.MQTT.Broker,
			Port:     cfg.MQTT.Port,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
		})
		if err != nil {
			log.Printf("MQTT: mirror disabled: %v", err)
		} else {
			m.publisher = pub
			m.publishFailures = ratelimit.NewCounter(time.Minute)
			defer pub.Close()
		}
	}

	if *once {
		if err := m.tick(ctx, time.Now()); err != nil {
			return 1
		}
		return 0
	}

	interval := cfg.Schedule.Interval()
	var ticks <-chan time.Time
	if cfg.Schedule.Align {
		ticks = alignedTicks(ctx, interval, nil)
		log.Printf("Running: every %s on wall-clock boundaries", interval)
	} else {
		ticks = fixedTicks(ctx, interval)
		log.Printf("Running: every %s", interval)
	}
	m.run(ctx, ticks)

	log.Println("Shutting down gracefully...")
	log.Print(tracker.SummaryLine())
	return 0
}

// loadConfig tries the flag, then the environment, then the default
// directory. Only a missing default falls back to built-in settings; a
// path the operator named must exist.
func loadConfig(flagPath string) (*config.Config, error) {
	explicit := strings.TrimSpace(flagPath)
	if explicit == "" {
		explicit = strings.TrimSpace(os.Getenv(envConfigPath))
	}
	if explicit != "" {
		return config.Load(explicit)
	}
	cfg, err := config.Load(defaultConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

// openDisplay returns a nil Display for the headless backend. Terminal
// backends take over stdout, so console logging is silenced until the
// returned close func restores it.
func openDisplay(cfg *config.Config, geom lcd.Geometry, fanout *logFanout, quit func()) (lcd.Display, func(), error) {
	switch cfg.Display.Backend {
	case config.BackendNone:
		log.Print("Display: headless, frames go to the log")
		return nil, func() {}, nil

	case config.BackendHD44780:
		pins := cfg.Display.Pins
		d, err := lcd.OpenHD44780(lcd.PinNumbers{Data: pins.Data, RS: pins.RS, Enable: pins.Enable}, geom)
		if err != nil {
			return nil, nil, err
		}
		d.SetDebug(cfg.Logging.Debug)
		log.Printf("Display: HD44780 %s ready", geom)
		return d, func() {
			if err := d.Close(); err != nil {
				log.Printf("Display: close failed: %v", err)
			}
		}, nil

	case config.BackendTerminal, config.BackendANSI:
		if !isStdoutTTY() {
			return nil, nil, fmt.Errorf("%s backend requires an interactive console", cfg.Display.Backend)
		}
		log.Printf("Display: %s simulator %s; console logging paused", cfg.Display.Backend, geom)
		if cfg.Display.Backend == config.BackendANSI {
			fanout.SetConsoleSink(nil)
			return lcd.NewANSI(os.Stdout, geom, true), func() { fanout.SetConsoleSink(os.Stdout) }, nil
		}
		t, err := lcd.OpenTerminal(geom, "lcdstat")
		if err != nil {
			return nil, nil, err
		}
		fanout.SetConsoleSink(nil)
		t.WatchQuit(quit)
		return t, func() {
			_ = t.Close()
			fanout.SetConsoleSink(os.Stdout)
		}, nil
	}
	return nil, nil, fmt.Errorf("display backend %q not recognized", cfg.Display.Backend)
}

func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
