// Package spibus puts panel commands on a real SPI bus. Three backends are
// available:
//
//   - periph: /dev/spidev through periph.io, portable and the default
//   - rpio:   BCM2835 SPI0 registers through go-rpio (linux only)
//   - log:    logs every transfer and touches no hardware
//
// Every backend implements panel.Bus, panel.TaskQueue and panel.GPIO.
package spibus

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"periph.io/x/conn/v3/physic"

	"stlcd/internal/panel"
)

var (
	// ErrTaskInFlight is returned by AllocTask while another task is live.
	ErrTaskInFlight = errors.New("spibus: pixel task already in flight")
	// ErrTaskState is returned when a task lifecycle step runs out of order.
	ErrTaskState = errors.New("spibus: pixel task used out of order")
	// ErrUnsupported is returned for features a backend cannot provide.
	ErrUnsupported = errors.New("spibus: unsupported")
	// ErrNoChipSelect is returned for transfers on a line that is not wired.
	ErrNoChipSelect = errors.New("spibus: chip select not available")
)

// Backend is everything the panel driver needs from the hardware.
type Backend interface {
	panel.Bus
	panel.TaskQueue
	panel.GPIO
	io.Closer
}

// Options select and configure a backend.
type Options struct {
	// Driver is "periph", "rpio" or "log".
	Driver string
	// Bus is the periph SPI bus name; ports <Bus>.0 and <Bus>.1 are opened.
	Bus string
	// DCPin is the BCM number of the data/command pin.
	DCPin int
	// CoreClock is the clock the divisor applies to.
	CoreClock physic.Frequency
	// ClockDivisor is the operating divisor used to connect.
	ClockDivisor uint32
	// Panels tells which chip-select lines must be available.
	Panels int
	// FirstChipSelect is the line of the first panel.
	FirstChipSelect panel.ChipSelect
	// Wide16 frames each opcode as a 16-bit word.
	Wide16 bool
	// DMA keeps chip-select asserted inside a transaction.
	DMA bool
}

// Open returns the backend named by o.Driver.
func Open(o Options) (Backend, error) {
	switch strings.ToLower(o.Driver) {
	case "", "periph":
		p, err := OpenPeriph(o)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "rpio":
		r, err := OpenRPIO(o)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "log":
		return NewLogBus(o), nil
	}
	return nil, fmt.Errorf("spibus: unknown driver %q", o.Driver)
}

// frequency converts a clock divisor into the SCLK frequency.
func frequency(core physic.Frequency, div uint32) (physic.Frequency, error) {
	if div == 0 {
		return 0, errors.New("spibus: clock divisor is zero")
	}
	if core <= 0 {
		return 0, errors.New("spibus: core clock not set")
	}
	return core / physic.Frequency(div), nil
}

// opcode frames cmd for the bus width.
func opcode(cmd byte, wide16 bool) []byte {
	if wide16 {
		return []byte{0, cmd}
	}
	return []byte{cmd}
}

// lines lists the chip-select lines used by n panels starting at first.
func lines(first panel.ChipSelect, n int) []panel.ChipSelect {
	cfg := panel.Config{Panels: n, UsesCE1: first == panel.CE1}
	return cfg.ChipSelects()
}
