package lcd

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// HD44780 instruction bytes.
const (
	cmdClear       byte = 0x01
	cmdEntryMode   byte = 0x06 // increment, no shift
	cmdDisplayOn   byte = 0x0C // display on, cursor off, blink off
	cmdWakeup      byte = 0x30
	cmdFunctionSet byte = 0x38 // 8-bit bus, 2 line, 5x8 font
	cmdSetDDRAM    byte = 0x80
)

// Bus timings. The controller is never read back, so every instruction
// is followed by a worst-case settle delay.
const (
	powerOnDelay = 50 * time.Millisecond
	wakeupDelay  = 5 * time.Millisecond
	clearDelay   = 2 * time.Millisecond
	pulseWidth   = time.Microsecond
	settleDelay  = 100 * time.Microsecond
)

// OutputPin is the one capability the driver needs from a GPIO line.
// periph's gpio.PinIO satisfies it.
type OutputPin interface {
	Out(l gpio.Level) error
}

// Pins are the eleven bus lines of an 8-bit HD44780 connection.
type Pins struct {
	Data   [8]OutputPin
	RS     OutputPin
	Enable OutputPin
}

// PinNumbers are BCM GPIO numbers, as written in the configuration.
type PinNumbers struct {
	Data   []int
	RS     int
	Enable int
}

// HD44780 writes to a character LCD over an 8-bit parallel GPIO bus.
type HD44780 struct {
	mu    sync.Mutex
	pins  Pins
	cur   cursor
	bases [4]int
	sleep func(time.Duration)
	debug bool
}

// OpenHD44780 initialises the host GPIO drivers, resolves the configured
// pins and resets the controller.
func OpenHD44780(nums PinNumbers, geom Geometry) (*HD44780, error) {
	if len(nums.Data) != 8 {
		return nil, fmt.Errorf("hd44780 needs 8 data pins, got %d", len(nums.Data))
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio host init: %w", err)
	}
	var pins Pins
	for i, n := range nums.Data {
		p, err := lookupPin(n)
		if err != nil {
			return nil, fmt.Errorf("data[%d]: %w", i, err)
		}
		pins.Data[i] = p
	}
	var err error
	if pins.RS, err = lookupPin(nums.RS); err != nil {
		return nil, fmt.Errorf("rs: %w", err)
	}
	if pins.Enable, err = lookupPin(nums.Enable); err != nil {
		return nil, fmt.Errorf("enable: %w", err)
	}
	return NewHD44780(pins, geom)
}

func lookupPin(n int) (gpio.PinIO, error) {
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", n))
	if p == nil {
		return nil, fmt.Errorf("BCM pin %d not found", n)
	}
	return p, nil
}

// NewHD44780 resets the controller on already-resolved pins.
func NewHD44780(pins Pins, geom Geometry) (*HD44780, error) {
	return newHD44780(pins, geom, time.Sleep)
}

func newHD44780(pins Pins, geom Geometry, sleep func(time.Duration)) (*HD44780, error) {
	for i, p := range pins.Data {
		if p == nil {
			return nil, fmt.Errorf("hd44780 data pin %d is nil", i)
		}
	}
	if pins.RS == nil || pins.Enable == nil {
		return nil, errors.New("hd44780 rs and enable pins are required")
	}
	if geom.Rows < 1 || geom.Rows > 4 || geom.Cols < 1 || geom.Cols > 40 || geom.Rows*geom.Cols > 80 {
		return nil, fmt.Errorf("hd44780 geometry %s %w", geom, ErrOutOfBounds)
	}
	d := &HD44780{
		pins:  pins,
		cur:   cursor{geom: geom},
		bases: [4]int{0x00, 0x40, geom.Cols, 0x40 + geom.Cols},
		sleep: sleep,
	}
	if err := d.reset(); err != nil {
		return nil, &WriteError{Op: "reset", Row: -1, Err: err}
	}
	return d, nil
}

// SetDebug logs every bus transfer.
func (d *HD44780) SetDebug(on bool) {
	d.mu.Lock()
	d.debug = on
	d.mu.Unlock()
}

// Geometry returns the configured grid.
func (d *HD44780) Geometry() Geometry {
	return d.cur.geom
}

func (d *HD44780) reset() error {
	d.sleep(powerOnDelay)
	if err := d.pins.Enable.Out(gpio.Low); err != nil {
		return err
	}
	if err := d.send(true, cmdWakeup); err != nil {
		return err
	}
	d.sleep(wakeupDelay)
	if err := d.send(true, cmdWakeup, cmdWakeup, cmdFunctionSet, cmdDisplayOn, cmdEntryMode); err != nil {
		return err
	}
	return d.clearLocked()
}

// SetCursor moves the DDRAM address to row, col.
func (d *HD44780) SetCursor(row, col int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.cur.set(row, col); err != nil {
		return err
	}
	return d.send(true, cmdSetDDRAM|byte(d.bases[row]+col))
}

// WriteText sends b as character data at the cursor. Text that would run
// past the end of the row is rejected before anything is sent.
func (d *HD44780) WriteText(b []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.cur.advance(len(b)); err != nil {
		return err
	}
	return d.send(false, b...)
}

// Clear blanks the display and homes the cursor.
func (d *HD44780) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clearLocked()
}

func (d *HD44780) clearLocked() error {
	if err := d.send(true, cmdClear); err != nil {
		return err
	}
	d.sleep(clearDelay)
	d.cur.row, d.cur.col = 0, 0
	return nil
}

// Close clears the display and leaves every bus line low.
func (d *HD44780) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.clearLocked()
	for _, p := range d.allPins() {
		if perr := p.Out(gpio.Low); perr != nil && err == nil {
			err = perr
		}
		if h, ok := p.(interface{ Halt() error }); ok {
			_ = h.Halt()
		}
	}
	return err
}

func (d *HD44780) allPins() []OutputPin {
	pins := make([]OutputPin, 0, 10)
	pins = append(pins, d.pins.Data[:]...)
	return append(pins, d.pins.RS, d.pins.Enable)
}

// send latches each byte onto the bus: RS selects command or data, the data
// lines carry the byte LSB first on D0, and a low-high-low pulse on E
// clocks it in.
func (d *HD44780) send(command bool, bs ...byte) error {
	if d.debug {
		kind := "data"
		if command {
			kind = "command"
		}
		log.Printf("LCD: send % X as %s", bs, kind)
	}
	if err := d.pins.RS.Out(gpio.Level(!command)); err != nil {
		return err
	}
	for _, b := range bs {
		for i, p := range d.pins.Data {
			if err := p.Out(gpio.Level((b>>i)&1 == 1)); err != nil {
				return err
			}
		}
		if err := d.pulse(); err != nil {
			return err
		}
		d.sleep(settleDelay)
	}
	return nil
}

func (d *HD44780) pulse() error {
	if err := d.pins.Enable.Out(gpio.Low); err != nil {
		return err
	}
	d.sleep(pulseWidth)
	if err := d.pins.Enable.Out(gpio.High); err != nil {
		return err
	}
	d.sleep(pulseWidth)
	return d.pins.Enable.Out(gpio.Low)
}
