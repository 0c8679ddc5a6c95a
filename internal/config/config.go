package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"stlcd/internal/panel"
	"stlcd/internal/spibus"
)

// PanelConfig describes the installed panels.
type PanelConfig struct {
	// Family is one of st7735r, st7735s, st7789, st7789vw.
	Family string `yaml:"family" json:"family"`

	// Width, Height and ActualHeight in pixels. Zero picks the family default.
	// ActualHeight is the row count of controller RAM.
	Width        int `yaml:"width" json:"width"`
	Height       int `yaml:"height" json:"height"`
	ActualHeight int `yaml:"actual_height" json:"actual_height"`

	// BusWidth is one of:
	//   - "standard" (default): coordinates as big-endian byte pairs
	//   - "16bit": 16-bit wide bus, every byte preceded by a zero byte
	//   - "8bit-cursor": single-byte coordinates
	BusWidth string `yaml:"bus_width" json:"bus_width"`

	BytesPerPixel int `yaml:"bytes_per_pixel" json:"bytes_per_pixel"`

	// Count is the number of panels (1 or 2), one per chip-select line.
	Count int `yaml:"count" json:"count"`
	// UsesCE1 puts a single panel on CE1.
	UsesCE1 bool `yaml:"uses_ce1" json:"uses_ce1"`

	SwapBGR         bool `yaml:"swap_bgr" json:"swap_bgr"`
	InvertColors    bool `yaml:"invert_colors" json:"invert_colors"`
	Rotate180       bool `yaml:"rotate_180" json:"rotate_180"`
	FlipOrientation bool `yaml:"flip_orientation" json:"flip_orientation"`
	// WaveshareHAT is set for the Waveshare ST7789VW / ST7735S HATs, which
	// mount the panel upside down.
	WaveshareHAT bool `yaml:"waveshare_hat" json:"waveshare_hat"`

	// ResetPin and BacklightPin are BCM numbers; leave unset when not wired.
	ResetPin         *int `yaml:"reset_pin,omitempty" json:"reset_pin,omitempty"`
	BacklightPin     *int `yaml:"backlight_pin,omitempty" json:"backlight_pin,omitempty"`
	BacklightControl bool `yaml:"backlight_control" json:"backlight_control"`
}

// BusConfig selects the SPI backend.
type BusConfig struct {
	// Driver is "periph" (default), "rpio" or "log".
	Driver string `yaml:"driver" json:"driver"`
	// Device is the periph bus name, "SPI0" by default.
	Device string `yaml:"device" json:"device"`
	DCPin  int    `yaml:"dc_pin" json:"dc_pin"`
	// CoreClockHz is the clock the divisor divides for the periph driver.
	// The rpio driver uses the core clock go-rpio assumes for the board.
	CoreClockHz int64 `yaml:"core_clock_hz" json:"core_clock_hz"`
	// ClockDivisor is the operating divisor, applied after init.
	ClockDivisor uint32 `yaml:"clock_divisor" json:"clock_divisor"`
	DMA          bool   `yaml:"dma" json:"dma"`
}

// TimingsConfig holds the init delays in milliseconds. They are lower
// bounds; zero uses the built-in value.
type TimingsConfig struct {
	ResetPulseMs  int `yaml:"reset_pulse_ms" json:"reset_pulse_ms"`
	SoftResetMs   int `yaml:"soft_reset_ms" json:"soft_reset_ms"`
	SleepOutMs    int `yaml:"sleep_out_ms" json:"sleep_out_ms"`
	PixelFormatMs int `yaml:"pixel_format_ms" json:"pixel_format_ms"`
	AddressModeMs int `yaml:"address_mode_ms" json:"address_mode_ms"`
	PartialOffMs  int `yaml:"partial_off_ms" json:"partial_off_ms"`
	DisplayOnMs   int `yaml:"display_on_ms" json:"display_on_ms"`
	ClockSettleMs int `yaml:"clock_settle_ms" json:"clock_settle_ms"`
}

// ScheduleConfig switches the backlight on a cron schedule. Empty
// expressions are not scheduled.
type ScheduleConfig struct {
	Off string `yaml:"off" json:"off"`
	On  string `yaml:"on" json:"on"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the control server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Listen is the control server address; empty disables it.
	Listen string `yaml:"listen" json:"listen"`

	Panel             PanelConfig    `yaml:"panel" json:"panel"`
	Bus               BusConfig      `yaml:"bus" json:"bus"`
	Timings           TimingsConfig  `yaml:"timings" json:"timings"`
	BacklightSchedule ScheduleConfig `yaml:"backlight_schedule" json:"backlight_schedule"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultFamily      = "st7789"
	defaultBusDriver   = "periph"
	defaultBusDevice   = "SPI0"
	defaultDCPin       = 25
	defaultCoreClockHz = 250_000_000
	defaultDivisor     = 6
)

// DefaultConfig returns an in-memory default configuration: one 240x240
// ST7789 module on CE0 with D/C on GPIO25.
func DefaultConfig() *Config {
	cfg := &Config{
		LogLevel: "info",
		Panel: PanelConfig{
			Family:        defaultFamily,
			BusWidth:      panel.Standard.String(),
			BytesPerPixel: 2,
			Count:         1,
		},
		Bus: BusConfig{
			Driver:       defaultBusDriver,
			Device:       defaultBusDevice,
			DCPin:        defaultDCPin,
			CoreClockHz:  defaultCoreClockHz,
			ClockDivisor: defaultDivisor,
		},
	}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	p := &c.Panel
	if p.Family == "" {
		p.Family = defaultFamily
	}
	if fam, err := panel.ParseFamily(p.Family); err == nil {
		g := fam.DefaultGeometry()
		if p.Width == 0 {
			p.Width = g.Width
		}
		if p.Height == 0 {
			p.Height = g.Height
		}
		if p.ActualHeight == 0 {
			p.ActualHeight = max(g.ActualHeight, p.Height)
		}
	}
	if p.BusWidth == "" {
		p.BusWidth = panel.Standard.String()
	}
	if p.BytesPerPixel == 0 {
		p.BytesPerPixel = 2
	}
	if p.Count == 0 {
		p.Count = 1
	}

	b := &c.Bus
	if b.Driver == "" {
		b.Driver = defaultBusDriver
	}
	if b.Device == "" {
		b.Device = defaultBusDevice
	}
	if b.CoreClockHz == 0 {
		b.CoreClockHz = defaultCoreClockHz
	}
	if b.ClockDivisor == 0 {
		b.ClockDivisor = defaultDivisor
	}

	t := &c.Timings
	d := panel.DefaultTimings()
	ms := func(v *int, def time.Duration) {
		if *v <= 0 {
			*v = int(def / time.Millisecond)
		}
	}
	ms(&t.ResetPulseMs, d.ResetPulse)
	ms(&t.SoftResetMs, d.SoftReset)
	ms(&t.SleepOutMs, d.SleepOut)
	ms(&t.PixelFormatMs, d.PixelFormat)
	ms(&t.AddressModeMs, d.AddressMode)
	ms(&t.PartialOffMs, d.PartialOff)
	ms(&t.DisplayOnMs, d.DisplayOn)
	ms(&t.ClockSettleMs, d.ClockSettle)
}

// PanelConfig resolves the YAML model into the immutable panel.Config and
// validates it.
func (c *Config) PanelConfig() (panel.Config, error) {
	fam, err := panel.ParseFamily(c.Panel.Family)
	if err != nil {
		return panel.Config{}, err
	}
	bw, err := panel.ParseBusWidth(c.Panel.BusWidth)
	if err != nil {
		return panel.Config{}, err
	}
	pin := func(p *int) int {
		if p == nil || *p < 0 {
			return panel.NoPin
		}
		return *p
	}
	ms := func(v int) time.Duration {
		return time.Duration(v) * time.Millisecond
	}

	pc := panel.Config{
		Family: fam,
		Geometry: panel.Geometry{
			Width:        c.Panel.Width,
			Height:       c.Panel.Height,
			ActualHeight: c.Panel.ActualHeight,
		},
		BusWidth:         bw,
		BytesPerPixel:    c.Panel.BytesPerPixel,
		Panels:           c.Panel.Count,
		UsesCE1:          c.Panel.UsesCE1,
		SwapBGR:          c.Panel.SwapBGR,
		InvertColors:     c.Panel.InvertColors,
		FlipOrientation:  c.Panel.FlipOrientation,
		WaveshareHAT:     c.Panel.WaveshareHAT,
		Rotate180:        c.Panel.Rotate180,
		ResetPin:         pin(c.Panel.ResetPin),
		BacklightPin:     pin(c.Panel.BacklightPin),
		BacklightControl: c.Panel.BacklightControl,
		ClockDivisor:     c.Bus.ClockDivisor,
		DMA:              c.Bus.DMA,
		Timings: panel.Timings{
			ResetPulse:  ms(c.Timings.ResetPulseMs),
			SoftReset:   ms(c.Timings.SoftResetMs),
			SleepOut:    ms(c.Timings.SleepOutMs),
			PixelFormat: ms(c.Timings.PixelFormatMs),
			AddressMode: ms(c.Timings.AddressModeMs),
			PartialOff:  ms(c.Timings.PartialOffMs),
			DisplayOn:   ms(c.Timings.DisplayOnMs),
			ClockSettle: ms(c.Timings.ClockSettleMs),
		},
	}
	if err := pc.Validate(); err != nil {
		return panel.Config{}, err
	}
	return pc, nil
}

// BusOptions returns the spibus options for the resolved panel config.
func (c *Config) BusOptions(pc panel.Config) spibus.Options {
	return spibus.Options{
		Driver:          c.Bus.Driver,
		Bus:             c.Bus.Device,
		DCPin:           c.Bus.DCPin,
		CoreClock:       physic.Frequency(c.Bus.CoreClockHz) * physic.Hertz,
		ClockDivisor:    c.Bus.ClockDivisor,
		Panels:          pc.Panels,
		FirstChipSelect: pc.FirstChipSelect(),
		Wide16:          pc.BusWidth == panel.Wide16,
		DMA:             pc.DMA,
	}
}

// Validate checks everything PanelConfig checks plus the bus section.
func (c *Config) Validate() error {
	if _, err := c.PanelConfig(); err != nil {
		return err
	}
	switch c.Bus.Driver {
	case "periph", "rpio", "log":
	default:
		return fmt.Errorf("config: unknown bus driver %q", c.Bus.Driver)
	}
	if c.Bus.CoreClockHz <= 0 {
		return fmt.Errorf("config: core_clock_hz must be positive, got %d", c.Bus.CoreClockHz)
	}
	if c.Bus.DCPin < 0 {
		return fmt.Errorf("config: dc_pin must be set, got %d", c.Bus.DCPin)
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file in the same directory, then rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".stlcd-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
