//go:build linux

package spibus

import (
	"fmt"
	"os"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	appLog "stlcd/internal/log"
	"stlcd/internal/panel"
)

// RPIO drives SPI0 through the BCM2835 registers mapped from /dev/gpiomem.
// Unlike spidev it programs the clock divisor register directly, which is
// what the init sequence expects. The core clock is the one go-rpio assumes
// for the board, Options.CoreClock is not used. Chip-select is released
// after every transfer, so DMA style transactions are not available.
type RPIO struct {
	*taskQueue

	mu        sync.Mutex
	dc        rpio.Pin
	coreClock int
	wide16    bool
}

// OpenRPIO maps the GPIO registers and starts SPI0.
func OpenRPIO(o Options) (*RPIO, error) {
	if o.DMA {
		return nil, fmt.Errorf("%w: DMA transactions with the rpio driver", ErrUnsupported)
	}
	// A missing file means an unknown board; go-rpio then assumes 250 MHz too.
	compatible, _ := os.ReadFile(deviceTreeCompatible)

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("spibus: rpio open failed: %w", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		_ = rpio.Close()
		return nil, fmt.Errorf("spibus: rpio SPI0 begin failed: %w", err)
	}
	rpio.SpiMode(0, 0)

	r := &RPIO{
		dc:        rpio.Pin(o.DCPin),
		coreClock: rpioCoreClockFor(compatible),
		wide16:    o.Wide16,
	}
	r.dc.Output()
	r.dc.Low()
	r.taskQueue = newTaskQueue(r.runTask)

	if err := r.SetClockDivisor(o.ClockDivisor); err != nil {
		_ = r.Close()
		return nil, err
	}
	appLog.Info("SPI bus ready", "driver", "rpio", "divisor", o.ClockDivisor, "core_hz", r.coreClock)
	return r, nil
}

func (r *RPIO) Transfer(cs panel.ChipSelect, cmd byte, args ...byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.send(cs, cmd, args)
	return nil
}

func (r *RPIO) runTask(t *panel.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.send(t.CS, t.Cmd, t.Data)
	return nil
}

// send must be called with r.mu held.
func (r *RPIO) send(cs panel.ChipSelect, cmd byte, data []byte) {
	rpio.SpiChipSelect(uint8(cs))
	r.dc.Low()
	rpio.SpiTransmit(opcode(cmd, r.wide16)...)
	if len(data) == 0 {
		return
	}
	r.dc.High()
	rpio.SpiTransmit(data...)
}

func (r *RPIO) Begin(cs panel.ChipSelect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rpio.SpiChipSelect(uint8(cs))
	return nil
}

// End is a no-op: the controller drops chip-select after each transfer.
func (r *RPIO) End(panel.ChipSelect) error {
	return nil
}

// SetClockDivisor programs SCLK = core clock / div.
func (r *RPIO) SetClockDivisor(div uint32) error {
	if div == 0 {
		return fmt.Errorf("spibus: clock divisor is zero")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rpio.SpiSpeed(rpioSpeed(r.coreClock, div))
	return nil
}

func (r *RPIO) SetMode(n int, mode panel.PinMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mode == panel.ModeOutput {
		rpio.Pin(n).Mode(rpio.Output)
	} else {
		rpio.Pin(n).Mode(rpio.Input)
	}
	return nil
}

func (r *RPIO) Set(n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rpio.Pin(n).High()
	return nil
}

func (r *RPIO) Clear(n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rpio.Pin(n).Low()
	return nil
}

func (r *RPIO) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rpio.SpiEnd(rpio.Spi0)
	return rpio.Close()
}
