// Package panel drives the ST7735R / ST7735S / ST7789 family of SPI LCD
// controllers: power-on reset, the controller init sequence, window
// addressing and the row-by-row framebuffer clear.
//
// The package only speaks in opcodes and bytes. Shifting them onto a wire is
// the job of a Bus, pixel payloads go through a TaskQueue and pins through a
// GPIO; internal/spibus provides real implementations of all three.
package panel

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate and New.
var ErrInvalidConfig = errors.New("panel: invalid config")

// Family selects the controller variant.
type Family int

const (
	ST7735R Family = iota
	ST7735S
	ST7789
	// ST7789VW is an ST7789 that rejects SWRESET and has no FRMCTR1 at 0xB1.
	ST7789VW
)

func (f Family) String() string {
	switch f {
	case ST7735R:
		return "st7735r"
	case ST7735S:
		return "st7735s"
	case ST7789:
		return "st7789"
	case ST7789VW:
		return "st7789vw"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// ParseFamily maps a config name to a Family.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "st7735r":
		return ST7735R, nil
	case "st7735s":
		return ST7735S, nil
	case "st7789":
		return ST7789, nil
	case "st7789vw":
		return ST7789VW, nil
	}
	return 0, fmt.Errorf("%w: unknown panel family %q", ErrInvalidConfig, s)
}

// isST7789 reports whether f belongs to the ST7789 family (ST7789VW included).
func (f Family) isST7789() bool {
	return f == ST7789 || f == ST7789VW
}

func (f Family) bgrByDefault() bool {
	return f == ST7735R || f == ST7735S
}

func (f Family) invertByDefault() bool {
	return f.isST7789()
}

func (f Family) acceptsSoftwareReset() bool {
	return f != ST7789VW
}

// hasGammaCurveSelect and hasFrameRateControl are both off for ST7789VW:
// the curve looks too contrasty there and its FRMCTR1 lives at 0xB3.
func (f Family) hasGammaCurveSelect() bool {
	return f != ST7789VW
}

func (f Family) hasFrameRateControl() bool {
	return f != ST7789VW
}

// DefaultGeometry is the usual module size for the family.
func (f Family) DefaultGeometry() Geometry {
	if f.isST7789() {
		return Geometry{Width: 240, Height: 240, ActualHeight: 320}
	}
	return Geometry{Width: 128, Height: 160, ActualHeight: 160}
}

// BusWidth selects how multi-byte coordinates are framed on the bus.
type BusWidth int

const (
	// Standard sends coordinates as big-endian byte pairs.
	Standard BusWidth = iota
	// Wide16 is a 16-bit bus where only the low byte of each word carries
	// data, so every byte is preceded by a zero filler.
	Wide16
	// Cursor8 sends each coordinate as a single byte.
	Cursor8
)

func (w BusWidth) String() string {
	switch w {
	case Standard:
		return "standard"
	case Wide16:
		return "16bit"
	case Cursor8:
		return "8bit-cursor"
	default:
		return fmt.Sprintf("buswidth(%d)", int(w))
	}
}

// ParseBusWidth maps a config name to a BusWidth. Empty means Standard.
func ParseBusWidth(s string) (BusWidth, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return Standard, nil
	case "16bit", "wide16":
		return Wide16, nil
	case "8bit-cursor", "cursor8":
		return Cursor8, nil
	}
	return 0, fmt.Errorf("%w: unknown bus width %q", ErrInvalidConfig, s)
}

// ChipSelect is an SPI chip-select line.
type ChipSelect uint8

const (
	CE0 ChipSelect = 0
	CE1 ChipSelect = 1
)

func (cs ChipSelect) String() string {
	return fmt.Sprintf("CE%d", uint8(cs))
}

// Next returns the other line.
func (cs ChipSelect) Next() ChipSelect {
	return cs ^ 1
}

// NoPin marks an unconnected reset or backlight pin.
const NoPin = -1

// Geometry is the panel size in pixels. ActualHeight is the row count of
// controller RAM, which can be larger than the visible Height.
type Geometry struct {
	Width        int
	Height       int
	ActualHeight int
}

// Timings are lower bounds for the delays of the init sequence.
type Timings struct {
	ResetPulse  time.Duration
	SoftReset   time.Duration
	SleepOut    time.Duration
	PixelFormat time.Duration
	AddressMode time.Duration
	PartialOff  time.Duration
	DisplayOn   time.Duration
	ClockSettle time.Duration
}

// DefaultTimings are the values that work on every module seen so far.
func DefaultTimings() Timings {
	return Timings{
		ResetPulse:  120 * time.Millisecond,
		SoftReset:   120 * time.Millisecond,
		SleepOut:    120 * time.Millisecond,
		PixelFormat: 20 * time.Millisecond,
		AddressMode: 10 * time.Millisecond,
		PartialOff:  10 * time.Millisecond,
		DisplayOn:   100 * time.Millisecond,
		ClockSettle: 10 * time.Millisecond,
	}
}

// withDefaults replaces zero entries by the defaults.
func (t Timings) withDefaults() Timings {
	d := DefaultTimings()
	pick := func(v, def time.Duration) time.Duration {
		if v <= 0 {
			return def
		}
		return v
	}
	return Timings{
		ResetPulse:  pick(t.ResetPulse, d.ResetPulse),
		SoftReset:   pick(t.SoftReset, d.SoftReset),
		SleepOut:    pick(t.SleepOut, d.SleepOut),
		PixelFormat: pick(t.PixelFormat, d.PixelFormat),
		AddressMode: pick(t.AddressMode, d.AddressMode),
		PartialOff:  pick(t.PartialOff, d.PartialOff),
		DisplayOn:   pick(t.DisplayOn, d.DisplayOn),
		ClockSettle: pick(t.ClockSettle, d.ClockSettle),
	}
}

// Config is the resolved, immutable description of the installed panels.
type Config struct {
	Family   Family
	Geometry Geometry
	BusWidth BusWidth

	// BytesPerPixel of the write-pixels payload; 2 for the 16bpp COLMOD we set.
	BytesPerPixel int

	// Panels is the number of physical panels, one per chip-select line.
	Panels int
	// UsesCE1 wires a single panel to CE1 instead of CE0.
	UsesCE1 bool

	// Overrides applied on top of the family defaults.
	SwapBGR         bool
	InvertColors    bool
	FlipOrientation bool
	WaveshareHAT    bool
	Rotate180       bool

	// ResetPin and BacklightPin are BCM numbers, NoPin when absent.
	ResetPin     int
	BacklightPin int
	// BacklightControl allows the driver to touch BacklightPin at all.
	BacklightControl bool

	// ClockDivisor is the operating SPI clock divisor restored after bring-up.
	ClockDivisor uint32

	// DMA keeps chip-select asserted after bring-up for queued transfers.
	DMA bool

	Timings Timings
}

// Validate rejects configurations that would put wrongly framed bytes on the
// bus.
func (c Config) Validate() error {
	g := c.Geometry
	switch {
	case g.Width <= 0 || g.Height <= 0:
		return fmt.Errorf("%w: geometry %dx%d", ErrInvalidConfig, g.Width, g.Height)
	case g.ActualHeight < g.Height:
		return fmt.Errorf("%w: actual height %d below visible height %d", ErrInvalidConfig, g.ActualHeight, g.Height)
	case g.Width > 0xFFFF || g.ActualHeight > 0xFFFF:
		return fmt.Errorf("%w: geometry %dx%d exceeds 16-bit addressing", ErrInvalidConfig, g.Width, g.ActualHeight)
	case c.BusWidth == Cursor8 && (g.Width > 0x100 || g.ActualHeight > 0x100):
		return fmt.Errorf("%w: 8-bit cursor mode cannot address %dx%d", ErrInvalidConfig, g.Width, g.ActualHeight)
	case c.BusWidth < Standard || c.BusWidth > Cursor8:
		return fmt.Errorf("%w: bus width %v", ErrInvalidConfig, c.BusWidth)
	case c.Family < ST7735R || c.Family > ST7789VW:
		return fmt.Errorf("%w: family %v", ErrInvalidConfig, c.Family)
	case c.BytesPerPixel <= 0:
		return fmt.Errorf("%w: bytes per pixel %d", ErrInvalidConfig, c.BytesPerPixel)
	case c.Panels < 1 || c.Panels > 2:
		return fmt.Errorf("%w: %d panels, want 1 or 2", ErrInvalidConfig, c.Panels)
	case c.ClockDivisor == 0:
		return fmt.Errorf("%w: clock divisor is zero", ErrInvalidConfig)
	}
	return nil
}

// FirstChipSelect is the line the per-panel loops start on.
func (c Config) FirstChipSelect() ChipSelect {
	if c.UsesCE1 && c.Panels < 2 {
		return CE1
	}
	return CE0
}

// ChipSelects lists the line of every panel in bring-up order.
func (c Config) ChipSelects() []ChipSelect {
	out := make([]ChipSelect, 0, c.Panels)
	cs := c.FirstChipSelect()
	for i := 0; i < c.Panels; i++ {
		out = append(out, cs)
		cs = cs.Next()
	}
	return out
}

// Inverted reports whether display inversion is switched on.
func (c Config) Inverted() bool {
	return c.Family.invertByDefault() != c.InvertColors
}

// Bus issues controller commands.
//
// Transfer shifts the opcode with D/C low and args with D/C high on line cs.
// SetClockDivisor must be ordered before every Transfer that follows it.
type Bus interface {
	Transfer(cs ChipSelect, cmd byte, args ...byte) error
	Begin(cs ChipSelect) error
	End(cs ChipSelect) error
	SetClockDivisor(div uint32) error
}

// Task is one pixel payload: Cmd followed by Data on line CS.
type Task struct {
	CS   ChipSelect
	Cmd  byte
	Data []byte
}

// Size is the payload length in bytes.
func (t *Task) Size() int {
	return len(t.Data)
}

// TaskQueue owns pixel payload buffers. A task is allocated, filled,
// committed, run and released, in that order.
type TaskQueue interface {
	AllocTask(cs ChipSelect, size int) (*Task, error)
	CommitTask(t *Task) error
	RunTask(t *Task) error
	DoneTask(t *Task)
}

// PinMode is a GPIO function select.
type PinMode int

const (
	ModeInput  PinMode = 0
	ModeOutput PinMode = 1
)

// GPIO drives pins by BCM number.
type GPIO interface {
	SetMode(pin int, mode PinMode) error
	Set(pin int) error
	Clear(pin int) error
}
