package spibus

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	appLog "stlcd/internal/log"
	"stlcd/internal/panel"
)

// defaultMaxTxSize is used when the port does not implement conn.Limits.
const defaultMaxTxSize = 4096

// PinResolver maps a BCM number to a pin, nil if unknown.
type PinResolver func(n int) gpio.PinIO

// BCMPin resolves through the periph registry as "GPIO<n>".
func BCMPin(n int) gpio.PinIO {
	return gpioreg.ByName(fmt.Sprintf("GPIO%d", n))
}

// Periph drives the panels through periph.io. Each chip-select line is its
// own spi.PortCloser (spidev0.0 and spidev0.1 on a Raspberry Pi); the D/C line is
// a plain GPIO.
type Periph struct {
	*taskQueue

	mu        sync.Mutex
	ports     [2]spi.PortCloser
	conns     [2]spi.Conn
	open      [2]bool
	dc        gpio.PinOut
	pins      PinResolver
	resolved  map[int]gpio.PinIO
	opts      Options
	maxTxSize int
}

// OpenPeriph initializes periph.io, opens the SPI ports needed by
// o.Panels and resolves the D/C pin.
func OpenPeriph(o Options) (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("spibus: periph host init failed: %w", err)
	}
	bus := o.Bus
	if bus == "" {
		bus = "SPI0"
	}

	var ports [2]spi.PortCloser
	for _, cs := range lines(o.FirstChipSelect, o.Panels) {
		name := fmt.Sprintf("%s.%d", bus, cs)
		p, err := spireg.Open(name)
		if err != nil {
			_ = closePorts(ports)
			return nil, fmt.Errorf("spibus: failed to open SPI port %s: %w", name, err)
		}
		ports[cs] = p
	}

	dc := BCMPin(o.DCPin)
	if dc == nil {
		_ = closePorts(ports)
		return nil, fmt.Errorf("spibus: gpio GPIO%d not found for D/C", o.DCPin)
	}

	p, err := NewPeriph(ports, dc, BCMPin, o)
	if err != nil {
		_ = closePorts(ports)
		return nil, err
	}
	return p, nil
}

// NewPeriph connects the given ports at the operating speed. A nil port
// leaves that chip-select line unavailable.
func NewPeriph(ports [2]spi.PortCloser, dc gpio.PinOut, pins PinResolver, o Options) (*Periph, error) {
	if dc == nil {
		return nil, errors.New("spibus: D/C pin is required")
	}
	if pins == nil {
		pins = BCMPin
	}
	f, err := frequency(o.CoreClock, o.ClockDivisor)
	if err != nil {
		return nil, err
	}
	if err := dc.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("spibus: D/C pin Out failed: %w", err)
	}

	p := &Periph{
		ports:     ports,
		dc:        dc,
		pins:      pins,
		resolved:  map[int]gpio.PinIO{},
		opts:      o,
		maxTxSize: defaultMaxTxSize,
	}
	for i, port := range ports {
		if port == nil {
			continue
		}
		c, err := port.Connect(f, spi.Mode0, 8)
		if err != nil {
			return nil, fmt.Errorf("spibus: failed to connect %s: %w", port, err)
		}
		if limits, ok := c.(conn.Limits); ok {
			if n := limits.MaxTxSize(); n > 0 && n < p.maxTxSize {
				p.maxTxSize = n
			}
		}
		p.conns[i] = c
	}
	p.taskQueue = newTaskQueue(p.runTask)
	appLog.Info("SPI bus ready", "driver", "periph", "hz", f, "max_tx", p.maxTxSize, "dma", o.DMA)
	return p, nil
}

func (p *Periph) conn(cs panel.ChipSelect) (spi.Conn, error) {
	if int(cs) >= len(p.conns) || p.conns[cs] == nil {
		return nil, fmt.Errorf("%w: %v", ErrNoChipSelect, cs)
	}
	return p.conns[cs], nil
}

// Transfer sends cmd with D/C low, then args with D/C high.
func (p *Periph) Transfer(cs panel.ChipSelect, cmd byte, args ...byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.send(cs, cmd, args)
}

func (p *Periph) runTask(t *panel.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.send(t.CS, t.Cmd, t.Data)
}

// send must be called with p.mu held.
func (p *Periph) send(cs panel.ChipSelect, cmd byte, data []byte) error {
	c, err := p.conn(cs)
	if err != nil {
		return err
	}
	keep := p.keepCS(cs)

	if err := p.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := c.TxPackets([]spi.Packet{{W: opcode(cmd, p.opts.Wide16), KeepCS: keep || len(data) > 0}}); err != nil {
		return fmt.Errorf("spibus: command 0x%02X: %w", cmd, err)
	}
	if len(data) == 0 {
		return nil
	}

	if err := p.dc.Out(gpio.High); err != nil {
		return err
	}
	for len(data) != 0 {
		var chunk []byte
		if len(data) > p.maxTxSize {
			chunk, data = data[:p.maxTxSize], data[p.maxTxSize:]
		} else {
			chunk, data = data, nil
		}
		if err := c.TxPackets([]spi.Packet{{W: chunk, KeepCS: keep || len(data) > 0}}); err != nil {
			return fmt.Errorf("spibus: data for 0x%02X: %w", cmd, err)
		}
	}
	return nil
}

// keepCS reports whether chip-select stays asserted after a transfer: only
// inside a transaction on a DMA configured bus.
func (p *Periph) keepCS(cs panel.ChipSelect) bool {
	return p.opts.DMA && p.open[cs]
}

// Begin opens a transaction on cs.
func (p *Periph) Begin(cs panel.ChipSelect) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.conn(cs); err != nil {
		return err
	}
	p.open[cs] = true
	return nil
}

// End closes the transaction on cs. When chip-select was held asserted a
// NOP is clocked out to release it.
func (p *Periph) End(cs panel.ChipSelect) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.conn(cs)
	if err != nil {
		return err
	}
	held := p.keepCS(cs)
	p.open[cs] = false
	if !held {
		return nil
	}
	if err := p.dc.Out(gpio.Low); err != nil {
		return err
	}
	return c.TxPackets([]spi.Packet{{W: opcode(panel.OpNOP, p.opts.Wide16)}})
}

// SetClockDivisor limits both ports to CoreClock/div. The port lock orders
// the change before every later transfer.
func (p *Periph) SetClockDivisor(div uint32) error {
	f, err := frequency(p.opts.CoreClock, div)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, port := range p.ports {
		if port == nil {
			continue
		}
		if err := port.LimitSpeed(f); err != nil {
			return fmt.Errorf("spibus: limit speed of %s to %s: %w", port, f, err)
		}
	}
	appLog.Debug("SPI clock changed", "divisor", div, "hz", f)
	return nil
}

func (p *Periph) pin(n int) (gpio.PinIO, error) {
	if pin, ok := p.resolved[n]; ok {
		return pin, nil
	}
	pin := p.pins(n)
	if pin == nil {
		return nil, fmt.Errorf("spibus: gpio GPIO%d not found", n)
	}
	p.resolved[n] = pin
	return pin, nil
}

// SetMode switches pin n between input and output. An output keeps the
// level it currently reads.
func (p *Periph) SetMode(n int, mode panel.PinMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pin, err := p.pin(n)
	if err != nil {
		return err
	}
	if mode == panel.ModeOutput {
		return pin.Out(pin.Read())
	}
	return pin.In(gpio.PullNoChange, gpio.NoEdge)
}

func (p *Periph) Set(n int) error {
	return p.write(n, gpio.High)
}

func (p *Periph) Clear(n int) error {
	return p.write(n, gpio.Low)
}

func (p *Periph) write(n int, l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pin, err := p.pin(n)
	if err != nil {
		return err
	}
	return pin.Out(l)
}

// Close releases chip-select lines still held and closes the ports.
func (p *Periph) Close() error {
	var errs []error
	for i := range p.conns {
		if p.conns[i] == nil {
			continue
		}
		if err := p.End(panel.ChipSelect(i)); err != nil {
			errs = append(errs, err)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	errs = append(errs, closePorts(p.ports))
	return errors.Join(errs...)
}

// closePorts closes every open port.
func closePorts(ports [2]spi.PortCloser) error {
	var errs []error
	for _, port := range ports {
		if port != nil {
			errs = append(errs, port.Close())
		}
	}
	return errors.Join(errs...)
}
