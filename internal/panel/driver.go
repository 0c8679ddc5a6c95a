package panel

import (
	"fmt"
	"sync"
	"time"

	appLog "stlcd/internal/log"
)

// Driver runs the controller protocol for every configured panel. Its
// methods are safe to call from several goroutines; they run one at a time.
type Driver struct {
	cfg   Config
	bus   Bus
	tasks TaskQueue
	gpio  GPIO
	sleep func(time.Duration)

	mu        sync.Mutex
	backlight bool
}

// Option customises a Driver.
type Option func(*Driver)

// WithSleep replaces time.Sleep for the init delays.
func WithSleep(fn func(time.Duration)) Option {
	return func(d *Driver) {
		if fn != nil {
			d.sleep = fn
		}
	}
}

// New validates cfg and returns a Driver. Nothing is sent to the hardware
// until Init.
func New(cfg Config, bus Bus, tasks TaskQueue, gpio GPIO, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if bus == nil || tasks == nil || gpio == nil {
		return nil, fmt.Errorf("%w: bus, task queue and gpio are required", ErrInvalidConfig)
	}
	cfg.Timings = cfg.Timings.withDefaults()
	d := &Driver{
		cfg:   cfg,
		bus:   bus,
		tasks: tasks,
		gpio:  gpio,
		sleep: time.Sleep,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Config returns the resolved configuration.
func (d *Driver) Config() Config {
	return d.cfg
}

// BacklightOn reports the last level the driver put on the backlight pin.
func (d *Driver) BacklightOn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backlight
}

// command is one step of the per-panel init sequence. A zero op (NOP) is
// never sent; the step only waits.
type command struct {
	name  string
	op    byte
	args  []byte
	delay time.Duration
}

// initSequence lists the controller commands sent to each panel, in order.
func (d *Driver) initSequence() []command {
	c := d.cfg
	t := c.Timings
	var seq []command

	if c.Family.acceptsSoftwareReset() {
		seq = append(seq, command{name: "software reset", op: cmdSoftReset, delay: t.SoftReset})
	} else {
		// The delay stays: it also covers the tail of the hardware reset.
		seq = append(seq, command{name: "software reset wait", delay: t.SoftReset})
	}
	seq = append(seq, command{name: "sleep out", op: cmdSleepOut, delay: t.SleepOut})
	if c.Family.hasGammaCurveSelect() {
		seq = append(seq, command{name: "gamma curve select", op: cmdGammaCurve, args: []byte{gammaCurve3}})
	}
	seq = append(seq,
		command{name: "pixel format", op: cmdPixelFormat, args: []byte{pixelFormat16}, delay: t.PixelFormat},
		command{name: "memory access control", op: cmdMADCTL, args: []byte{c.MADCTL()}, delay: t.AddressMode},
	)
	if c.Family.isST7789() {
		seq = append(seq, command{name: "gamma enable", op: cmdGammaEnable, args: []byte{gammaEnableArg}})
	}
	if c.Inverted() {
		seq = append(seq, command{name: "inversion on", op: cmdInvertOn})
	} else {
		seq = append(seq, command{name: "inversion off", op: cmdInvertOff})
	}
	seq = append(seq, command{name: "partial off", op: cmdPartialOff, delay: t.PartialOff})
	if off, ok := c.verticalScroll(); ok {
		seq = append(seq, command{name: "vertical scroll", op: cmdVScrollAddr, args: []byte{byte(off >> 8), byte(off)}})
	}
	if c.Family.hasFrameRateControl() {
		seq = append(seq, command{name: "frame rate control", op: cmdFrameRate1, args: frameRateArgs})
	}
	seq = append(seq, command{name: "display on", op: cmdDisplayOn, delay: t.DisplayOn})
	return seq
}

// Init resets the controllers, sends the init sequence to every panel,
// blanks them and switches the bus to its operating clock. It runs to
// completion or stops at the first failed step.
func (d *Driver) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.hardwareReset(); err != nil {
		return err
	}

	appLog.Debug("lowering SPI clock for init", "divisor", SlowClockDivisor)
	if err := d.bus.SetClockDivisor(SlowClockDivisor); err != nil {
		return fmt.Errorf("panel: set init clock: %w", err)
	}

	for _, cs := range d.cfg.ChipSelects() {
		if err := d.initPanel(cs); err != nil {
			return err
		}
	}

	// Restoring the clock right after the clear has been seen to leave the
	// panel uninitialised.
	d.sleep(d.cfg.Timings.ClockSettle)
	appLog.Debug("restoring SPI clock", "divisor", d.cfg.ClockDivisor)
	if err := d.bus.SetClockDivisor(d.cfg.ClockDivisor); err != nil {
		return fmt.Errorf("panel: restore clock: %w", err)
	}
	return nil
}

// hardwareReset pulses the reset pin high, low, high.
func (d *Driver) hardwareReset() error {
	pin := d.cfg.ResetPin
	if pin == NoPin {
		return nil
	}
	appLog.Info("resetting display", "reset_pin", pin)
	pulse := d.cfg.Timings.ResetPulse
	if err := d.gpio.SetMode(pin, ModeOutput); err != nil {
		return fmt.Errorf("panel: reset pin %d mode: %w", pin, err)
	}
	for _, high := range []bool{true, false, true} {
		var err error
		if high {
			err = d.gpio.Set(pin)
		} else {
			err = d.gpio.Clear(pin)
		}
		if err != nil {
			return fmt.Errorf("panel: reset pin %d: %w", pin, err)
		}
		d.sleep(pulse)
	}
	return nil
}

func (d *Driver) initPanel(cs ChipSelect) error {
	if err := d.bus.Begin(cs); err != nil {
		return fmt.Errorf("panel: begin %v: %w", cs, err)
	}
	if err := d.bringUp(cs); err != nil {
		// Released in DMA mode too.
		if endErr := d.bus.End(cs); endErr != nil {
			appLog.Error("end after failed init", endErr, "cs", cs)
		}
		return err
	}

	// DMA transfers keep CS asserted after init.
	if !d.cfg.DMA {
		if err := d.bus.End(cs); err != nil {
			return fmt.Errorf("panel: end %v: %w", cs, err)
		}
	}
	return nil
}

// bringUp sends the init sequence to cs, switches the backlight on and
// blanks the panel.
func (d *Driver) bringUp(cs ChipSelect) error {
	for _, c := range d.initSequence() {
		if c.op != 0 {
			if err := d.bus.Transfer(cs, c.op, c.args...); err != nil {
				return fmt.Errorf("panel: %s on %v: %w", c.name, cs, err)
			}
		}
		if c.delay > 0 {
			d.sleep(c.delay)
		}
	}

	if err := d.setBacklight(true); err != nil {
		return err
	}
	if err := d.clearScreen(cs); err != nil {
		return err
	}
	appLog.Info("initialized display", "family", d.cfg.Family, "cs", cs)
	return nil
}
