package spibus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"stlcd/internal/panel"
)

func TestOpenLog(t *testing.T) {
	b, err := Open(Options{Driver: "LOG"})
	require.NoError(t, err)
	require.IsType(t, &LogBus{}, b)
	require.NoError(t, b.Close())
}

func TestOpenUnknownDriver(t *testing.T) {
	b, err := Open(Options{Driver: "bitbang"})
	require.Error(t, err)
	require.Nil(t, b)
}

func TestOpenRPIORejectsDMA(t *testing.T) {
	b, err := Open(Options{Driver: "rpio", DMA: true, CoreClock: physic.MegaHertz, ClockDivisor: 2})
	require.ErrorIs(t, err, ErrUnsupported)
	require.Nil(t, b)
}

func TestFrequency(t *testing.T) {
	f, err := frequency(250*physic.MegaHertz, 10)
	require.NoError(t, err)
	require.Equal(t, 25*physic.MegaHertz, f)

	_, err = frequency(250*physic.MegaHertz, 0)
	require.Error(t, err)
	_, err = frequency(0, 4)
	require.Error(t, err)
}

func TestOpcode(t *testing.T) {
	require.Equal(t, []byte{0x2C}, opcode(0x2C, false))
	require.Equal(t, []byte{0x00, 0x2C}, opcode(0x2C, true))
}

func TestLines(t *testing.T) {
	require.Equal(t, []panel.ChipSelect{panel.CE0}, lines(panel.CE0, 1))
	require.Equal(t, []panel.ChipSelect{panel.CE1}, lines(panel.CE1, 1))
	require.Equal(t, []panel.ChipSelect{panel.CE0, panel.CE1}, lines(panel.CE1, 2))
}

func TestLogBusDrivesPanel(t *testing.T) {
	b := NewLogBus(Options{Wide16: true})
	cfg := panel.Config{
		Family:           panel.ST7735S,
		Geometry:         panel.ST7735S.DefaultGeometry(),
		BytesPerPixel:    2,
		Panels:           2,
		ResetPin:         27,
		BacklightPin:     18,
		BacklightControl: true,
		ClockDivisor:     6,
	}
	d, err := panel.New(cfg, b, b, b, panel.WithSleep(func(time.Duration) {}))
	require.NoError(t, err)

	require.NoError(t, d.Init())
	require.True(t, b.Level(27), "reset released high")
	require.True(t, b.Level(18))

	require.NoError(t, d.TurnDisplayOff())
	require.False(t, b.Level(18))
}
