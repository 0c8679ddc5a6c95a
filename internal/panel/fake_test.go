package panel

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

var errBoom = errors.New("boom")

type eventKind string

const (
	evTransfer eventKind = "transfer"
	evBegin    eventKind = "begin"
	evEnd      eventKind = "end"
	evClock    eventKind = "clock"
	evAlloc    eventKind = "alloc"
	evCommit   eventKind = "commit"
	evRun      eventKind = "run"
	evDone     eventKind = "done"
	evMode     eventKind = "mode"
	evSet      eventKind = "set"
	evClear    eventKind = "clear"
	evSleep    eventKind = "sleep"
)

type event struct {
	kind  eventKind
	cs    ChipSelect
	cmd   byte
	args  []byte
	n     int
	delay time.Duration
}

func (e event) String() string {
	switch e.kind {
	case evTransfer:
		return fmt.Sprintf("%v %v 0x%02X % X", e.kind, e.cs, e.cmd, e.args)
	case evSleep:
		return fmt.Sprintf("%v %v", e.kind, e.delay)
	default:
		return fmt.Sprintf("%v %v %d", e.kind, e.cs, e.n)
	}
}

// recorder implements Bus, TaskQueue and GPIO and logs every call in order.
type recorder struct {
	events []event
	live   *Task
	state  eventKind

	failCmd   byte
	failTasks bool
}

func newRecorder() *recorder {
	return &recorder{}
}

func (r *recorder) Transfer(cs ChipSelect, cmd byte, args ...byte) error {
	if r.failCmd != 0 && cmd == r.failCmd {
		return errBoom
	}
	r.events = append(r.events, event{kind: evTransfer, cs: cs, cmd: cmd, args: append([]byte(nil), args...)})
	return nil
}

func (r *recorder) Begin(cs ChipSelect) error {
	r.events = append(r.events, event{kind: evBegin, cs: cs})
	return nil
}

func (r *recorder) End(cs ChipSelect) error {
	r.events = append(r.events, event{kind: evEnd, cs: cs})
	return nil
}

func (r *recorder) SetClockDivisor(div uint32) error {
	r.events = append(r.events, event{kind: evClock, n: int(div)})
	return nil
}

func (r *recorder) AllocTask(cs ChipSelect, size int) (*Task, error) {
	if r.live != nil {
		return nil, errors.New("task already live")
	}
	// Dirty buffer so a missing zero-fill shows up.
	r.live = &Task{CS: cs, Data: bytes.Repeat([]byte{0xFF}, size)}
	r.state = evAlloc
	r.events = append(r.events, event{kind: evAlloc, cs: cs, n: size})
	return r.live, nil
}

func (r *recorder) CommitTask(t *Task) error {
	if t != r.live || r.state != evAlloc {
		return errors.New("commit out of order")
	}
	r.state = evCommit
	r.events = append(r.events, event{kind: evCommit, cs: t.CS, n: t.Size()})
	return nil
}

func (r *recorder) RunTask(t *Task) error {
	if t != r.live || r.state != evCommit {
		return errors.New("run out of order")
	}
	if r.failTasks {
		return errBoom
	}
	r.state = evRun
	r.events = append(r.events, event{kind: evRun, cs: t.CS, cmd: t.Cmd, args: append([]byte(nil), t.Data...), n: t.Size()})
	return nil
}

func (r *recorder) DoneTask(t *Task) {
	if t == r.live {
		r.live = nil
		r.state = ""
	}
	r.events = append(r.events, event{kind: evDone, cs: t.CS})
}

func (r *recorder) SetMode(pin int, mode PinMode) error {
	r.events = append(r.events, event{kind: evMode, n: pin, cmd: byte(mode)})
	return nil
}

func (r *recorder) Set(pin int) error {
	r.events = append(r.events, event{kind: evSet, n: pin})
	return nil
}

func (r *recorder) Clear(pin int) error {
	r.events = append(r.events, event{kind: evClear, n: pin})
	return nil
}

func (r *recorder) sleep(d time.Duration) {
	r.events = append(r.events, event{kind: evSleep, delay: d})
}

// filter returns the events of the given kinds.
func (r *recorder) filter(kinds ...eventKind) []event {
	var out []event
	for _, e := range r.events {
		for _, k := range kinds {
			if e.kind == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// transfers returns the command transfers sent on cs.
func (r *recorder) transfers(cs ChipSelect) []event {
	var out []event
	for _, e := range r.filter(evTransfer) {
		if e.cs == cs {
			out = append(out, e)
		}
	}
	return out
}

func newTestDriver(cfg Config, r *recorder) (*Driver, error) {
	return New(cfg, r, r, r, WithSleep(r.sleep))
}

// st7735Config is a 128x160 ST7735R on CE0 with no pins wired.
func st7735Config() Config {
	return Config{
		Family:        ST7735R,
		Geometry:      Geometry{Width: 128, Height: 160, ActualHeight: 160},
		BusWidth:      Standard,
		BytesPerPixel: 2,
		Panels:        1,
		ResetPin:      NoPin,
		BacklightPin:  NoPin,
		ClockDivisor:  6,
	}
}

// st7789Config is a 240x240 ST7789 with 320 rows of RAM.
func st7789Config() Config {
	c := st7735Config()
	c.Family = ST7789
	c.Geometry = Geometry{Width: 240, Height: 240, ActualHeight: 320}
	return c
}
