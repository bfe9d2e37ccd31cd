// Command lcdtext writes free text to the display, one line per row. Lines
// come from the arguments, or from stdin when there are none.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"lcdstat/config"
	"lcdstat/lcd"
	"lcdstat/render"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "config file or directory for geometry and pins (default built-in settings)")
	backend := pflag.StringP("backend", "b", config.BackendANSI, "hd44780, terminal or ansi")
	hold := pflag.Duration("hold", 0, "terminal backend: how long to keep the text up (0 waits for q or Esc)")
	pflag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	geom := lcd.Geometry{Rows: cfg.Display.Rows, Cols: cfg.Display.Cols}

	text, err := readText(pflag.Args(), os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "input error: %v\n", err)
		os.Exit(1)
	}
	frame, err := render.SplitText(text, geom)
	if err != nil {
		fmt.Fprintf(os.Stderr, "text does not fit %s: %v\n", geom, err)
		os.Exit(1)
	}

	renderer := render.NewRenderer(geom, nil)
	switch strings.ToLower(*backend) {
	case config.BackendHD44780:
		pins := cfg.Display.Pins
		d, err := lcd.OpenHD44780(lcd.PinNumbers{Data: pins.Data, RS: pins.RS, Enable: pins.Enable}, geom)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening display: %v\n", err)
			os.Exit(1)
		}
		// No Close: it would blank the text this command just wrote.
		if err := renderer.Draw(d, frame); err != nil {
			fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
			os.Exit(1)
		}

	case config.BackendANSI:
		if err := renderer.Draw(lcd.NewANSI(os.Stdout, geom, false), frame); err != nil {
			fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
			os.Exit(1)
		}

	case config.BackendTerminal:
		if err := showOnTerminal(renderer, frame, *hold); err != nil {
			fmt.Fprintf(os.Stderr, "terminal: %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown backend %q\n", *backend)
		os.Exit(2)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// showOnTerminal keeps the simulator up until hold expires, the user quits
// or an interrupt arrives.
func showOnTerminal(renderer *render.Renderer, frame render.Frame, hold time.Duration) error {
	t, err := lcd.OpenTerminal(renderer.Geometry(), "lcdtext")
	if err != nil {
		return err
	}
	defer t.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if hold > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hold)
		defer cancel()
	}
	t.WatchQuit(stop)
	if err := renderer.Draw(t, frame); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// readText joins args as separate lines. Without args it reads stdin and
// drops the final line break.
func readText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, "\n"), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
