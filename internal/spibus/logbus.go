package spibus

import (
	"fmt"
	"sync"

	appLog "stlcd/internal/log"
	"stlcd/internal/panel"
)

// LogBus logs what would go on the wire. It is what -dry-run uses.
type LogBus struct {
	*taskQueue

	mu     sync.Mutex
	wide16 bool
	levels map[int]bool
}

func NewLogBus(o Options) *LogBus {
	b := &LogBus{wide16: o.Wide16, levels: map[int]bool{}}
	b.taskQueue = newTaskQueue(b.runTask)
	appLog.Info("SPI bus ready", "driver", "log")
	return b
}

func (b *LogBus) Transfer(cs panel.ChipSelect, cmd byte, args ...byte) error {
	appLog.Debug("spi transfer", "cs", cs, "cmd", fmt.Sprintf("% X", opcode(cmd, b.wide16)), "args", fmt.Sprintf("% X", args))
	return nil
}

func (b *LogBus) runTask(t *panel.Task) error {
	appLog.Debug("spi task", "cs", t.CS, "cmd", fmt.Sprintf("0x%02X", t.Cmd), "bytes", t.Size())
	return nil
}

func (b *LogBus) Begin(cs panel.ChipSelect) error {
	appLog.Debug("spi begin", "cs", cs)
	return nil
}

func (b *LogBus) End(cs panel.ChipSelect) error {
	appLog.Debug("spi end", "cs", cs)
	return nil
}

func (b *LogBus) SetClockDivisor(div uint32) error {
	appLog.Debug("spi clock", "divisor", div)
	return nil
}

func (b *LogBus) SetMode(n int, mode panel.PinMode) error {
	appLog.Debug("gpio mode", "pin", n, "mode", mode)
	return nil
}

func (b *LogBus) Set(n int) error {
	return b.write(n, true)
}

func (b *LogBus) Clear(n int) error {
	return b.write(n, false)
}

func (b *LogBus) write(n int, high bool) error {
	b.mu.Lock()
	b.levels[n] = high
	b.mu.Unlock()
	appLog.Debug("gpio write", "pin", n, "high", high)
	return nil
}

// Level reports the last value written to pin n.
func (b *LogBus) Level(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels[n]
}

func (b *LogBus) Close() error {
	return nil
}
