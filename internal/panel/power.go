package panel

import (
	"errors"
	"fmt"

	appLog "stlcd/internal/log"
)

// TurnDisplayOff switches the backlight off. The controllers stay awake.
func (d *Driver) TurnDisplayOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setBacklight(false)
}

// TurnDisplayOn switches the backlight on.
func (d *Driver) TurnDisplayOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setBacklight(true)
}

// setBacklight is a no-op unless a backlight pin is configured and the
// driver is allowed to control it. The pin is put back into output mode
// every time in case something else switched it to PWM.
func (d *Driver) setBacklight(on bool) error {
	pin := d.cfg.BacklightPin
	if pin == NoPin || !d.cfg.BacklightControl {
		return nil
	}
	if err := d.gpio.SetMode(pin, ModeOutput); err != nil {
		return fmt.Errorf("panel: backlight pin %d mode: %w", pin, err)
	}
	var err error
	if on {
		err = d.gpio.Set(pin)
	} else {
		err = d.gpio.Clear(pin)
	}
	if err != nil {
		return fmt.Errorf("panel: backlight pin %d: %w", pin, err)
	}
	d.backlight = on
	appLog.Debug("backlight", "pin", pin, "on", on)
	return nil
}

// Deinit blanks every panel. It keeps going past a failing panel and
// returns all errors joined.
func (d *Driver) Deinit() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for _, cs := range d.cfg.ChipSelects() {
		if err := d.clearScreen(cs); err != nil {
			appLog.Error("clear on shutdown failed", err, "cs", cs)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
