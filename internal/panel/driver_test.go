package panel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// initTransfers returns the init commands sent on cs, up to the first
// cursor command of the clear.
func initTransfers(r *recorder, cs ChipSelect) []event {
	var out []event
	for _, e := range r.transfers(cs) {
		if e.cmd == OpSetCursorX {
			break
		}
		out = append(out, e)
	}
	return out
}

func opcodes(ev []event) []byte {
	out := make([]byte, len(ev))
	for i, e := range ev {
		out[i] = e.cmd
	}
	return out
}

func TestInitST7735TwoPanels(t *testing.T) {
	cfg := st7735Config()
	cfg.Panels = 2
	r := newRecorder()
	d, err := newTestDriver(cfg, r)
	require.NoError(t, err)

	require.NoError(t, d.Init())

	clocks := r.filter(evClock)
	require.Len(t, clocks, 2)
	require.Equal(t, SlowClockDivisor, clocks[0].n)
	require.Equal(t, 6, clocks[1].n)
	require.Equal(t, evClock, r.events[0].kind, "slow clock before any command")

	tail := r.events[len(r.events)-2:]
	require.Equal(t, evSleep, tail[0].kind)
	require.Equal(t, 10*time.Millisecond, tail[0].delay)
	require.Equal(t, evClock, tail[1].kind)

	for _, cs := range []ChipSelect{CE0, CE1} {
		ev := initTransfers(r, cs)
		require.Equal(t, []byte{0x01, 0x11, 0x26, 0x3A, 0x36, 0x20, 0x13, 0xB1, 0x29}, opcodes(ev), "%v", cs)
		require.Equal(t, []byte{0x04}, ev[2].args)
		require.Equal(t, []byte{0x05}, ev[3].args)
		require.Equal(t, []byte{0x88}, ev[4].args)
		require.Equal(t, []byte{6, 1, 1}, ev[7].args)
		require.Len(t, r.filter(evRun), 2*160)
	}

	// CE0 is brought up and cleared before CE1 is touched.
	var order []ChipSelect
	for _, e := range r.filter(evBegin, evEnd) {
		order = append(order, e.cs)
	}
	require.Equal(t, []ChipSelect{CE0, CE0, CE1, CE1}, order)
	lastCE0, firstCE1 := -1, -1
	for i, e := range r.events {
		if e.kind == evTransfer && e.cs == CE0 {
			lastCE0 = i
		}
		if e.kind == evTransfer && e.cs == CE1 && firstCE1 < 0 {
			firstCE1 = i
		}
	}
	require.Less(t, lastCE0, firstCE1)
}

func TestInitDelays(t *testing.T) {
	r := newRecorder()
	d, err := newTestDriver(st7735Config(), r)
	require.NoError(t, err)
	require.NoError(t, d.Init())

	var sleeps []time.Duration
	for _, e := range r.filter(evSleep) {
		sleeps = append(sleeps, e.delay)
	}
	ms := time.Millisecond
	require.Equal(t, []time.Duration{120 * ms, 120 * ms, 20 * ms, 10 * ms, 10 * ms, 100 * ms, 10 * ms}, sleeps)
}

func TestInitCustomTimings(t *testing.T) {
	cfg := st7735Config()
	cfg.Timings.SleepOut = 200 * time.Millisecond
	r := newRecorder()
	d, err := newTestDriver(cfg, r)
	require.NoError(t, err)
	require.Equal(t, 200*time.Millisecond, d.Config().Timings.SleepOut)
	require.Equal(t, 120*time.Millisecond, d.Config().Timings.SoftReset)
	require.NoError(t, d.Init())
	require.Equal(t, 200*time.Millisecond, r.filter(evSleep)[1].delay)
}

func TestInitST7789(t *testing.T) {
	r := newRecorder()
	d, err := newTestDriver(st7789Config(), r)
	require.NoError(t, err)
	require.NoError(t, d.Init())

	ev := initTransfers(r, CE0)
	require.Equal(t, []byte{0x01, 0x11, 0x26, 0x3A, 0x36, 0xBA, 0x21, 0x13, 0x37, 0xB1, 0x29}, opcodes(ev))
	require.Equal(t, []byte{0x80}, ev[4].args)
	require.Equal(t, []byte{0x04}, ev[5].args)
	require.Equal(t, []byte{0x00, 0x50}, ev[8].args)
	require.Len(t, r.filter(evRun), 320)
}

func TestInitST7789VW(t *testing.T) {
	r := newRecorder()
	cfg := st7789Config()
	cfg.Family = ST7789VW
	d, err := newTestDriver(cfg, r)
	require.NoError(t, err)
	require.NoError(t, d.Init())

	ev := initTransfers(r, CE0)
	require.Equal(t, []byte{0x11, 0x3A, 0x36, 0xBA, 0x21, 0x13, 0x37, 0x29}, opcodes(ev))
	// The software reset wait is kept even though SWRESET is skipped.
	require.Equal(t, 120*time.Millisecond, r.filter(evSleep)[0].delay)
}

func TestInitST7789Rotated(t *testing.T) {
	r := newRecorder()
	cfg := st7789Config()
	cfg.Rotate180 = true
	cfg.InvertColors = true
	d, err := newTestDriver(cfg, r)
	require.NoError(t, err)
	require.NoError(t, d.Init())

	ev := initTransfers(r, CE0)
	require.Equal(t, []byte{0x01, 0x11, 0x26, 0x3A, 0x36, 0xBA, 0x20, 0x13, 0xB1, 0x29}, opcodes(ev))
	require.Equal(t, []byte{0x40}, ev[4].args)
}

func TestInitResetPulse(t *testing.T) {
	cfg := st7735Config()
	cfg.ResetPin = 27
	r := newRecorder()
	d, err := newTestDriver(cfg, r)
	require.NoError(t, err)
	require.NoError(t, d.Init())

	pulse := r.events[:7]
	ms120 := 120 * time.Millisecond
	require.Equal(t, []event{
		{kind: evMode, n: 27, cmd: byte(ModeOutput)},
		{kind: evSet, n: 27},
		{kind: evSleep, delay: ms120},
		{kind: evClear, n: 27},
		{kind: evSleep, delay: ms120},
		{kind: evSet, n: 27},
		{kind: evSleep, delay: ms120},
	}, pulse)
	require.Equal(t, evClock, r.events[7].kind)
}

func TestInitBacklightAfterDisplayOn(t *testing.T) {
	cfg := st7735Config()
	cfg.BacklightPin = 18
	cfg.BacklightControl = true
	r := newRecorder()
	d, err := newTestDriver(cfg, r)
	require.NoError(t, err)
	require.False(t, d.BacklightOn())
	require.NoError(t, d.Init())
	require.True(t, d.BacklightOn())

	displayOn, set, firstCursor := -1, -1, -1
	for i, e := range r.events {
		switch {
		case e.kind == evTransfer && e.cmd == 0x29:
			displayOn = i
		case e.kind == evSet && e.n == 18 && set < 0:
			set = i
		case e.kind == evTransfer && e.cmd == OpSetCursorX && firstCursor < 0:
			firstCursor = i
		}
	}
	require.Less(t, displayOn, set)
	require.Less(t, set, firstCursor)
}

func TestInitBacklightWithoutControl(t *testing.T) {
	cfg := st7735Config()
	cfg.BacklightPin = 18
	r := newRecorder()
	d, err := newTestDriver(cfg, r)
	require.NoError(t, err)
	require.NoError(t, d.Init())
	require.Empty(t, r.filter(evMode, evSet, evClear))
}

func TestInitDMAKeepsChipSelect(t *testing.T) {
	cfg := st7735Config()
	cfg.DMA = true
	r := newRecorder()
	d, err := newTestDriver(cfg, r)
	require.NoError(t, err)
	require.NoError(t, d.Init())

	require.Len(t, r.filter(evBegin), 1)
	require.Empty(t, r.filter(evEnd))
}

func TestInitUsesCE1(t *testing.T) {
	cfg := st7735Config()
	cfg.UsesCE1 = true
	r := newRecorder()
	d, err := newTestDriver(cfg, r)
	require.NoError(t, err)
	require.NoError(t, d.Init())

	require.Empty(t, r.transfers(CE0))
	require.NotEmpty(t, r.transfers(CE1))
}

func TestInitStopsAtFirstFailure(t *testing.T) {
	cfg := st7735Config()
	cfg.Panels = 2
	r := newRecorder()
	r.failCmd = 0x11
	d, err := newTestDriver(cfg, r)
	require.NoError(t, err)

	err = d.Init()
	require.ErrorIs(t, err, errBoom)
	require.Contains(t, err.Error(), "sleep out")
	require.Contains(t, err.Error(), "CE0")

	require.Empty(t, r.transfers(CE1))
	ends := r.filter(evEnd)
	require.Len(t, ends, 1, "failed panel released")
	require.Equal(t, CE0, ends[0].cs)
	clocks := r.filter(evClock)
	require.Len(t, clocks, 1, "operating clock not restored")
	require.Equal(t, SlowClockDivisor, clocks[0].n)
}

func TestInitFailureReleasesChipSelectInDMAMode(t *testing.T) {
	cfg := st7735Config()
	cfg.DMA = true
	r := newRecorder()
	r.failTasks = true
	d, err := newTestDriver(cfg, r)
	require.NoError(t, err)

	err = d.Init()
	require.ErrorIs(t, err, errBoom)
	require.Contains(t, err.Error(), "clear row 0")

	be := r.filter(evBegin, evEnd)
	require.Len(t, be, 2)
	require.Equal(t, evBegin, be[0].kind)
	require.Equal(t, evEnd, be[1].kind)
	require.Equal(t, CE0, be[1].cs)
}

func TestNewRejectsBadInput(t *testing.T) {
	r := newRecorder()
	cfg := st7735Config()
	cfg.Panels = 3
	_, err := newTestDriver(cfg, r)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(st7735Config(), nil, r, r)
	require.ErrorIs(t, err, ErrInvalidConfig)
}
