package panel

import "fmt"

// ClearScreen writes black to every row of controller RAM behind cs,
// including rows past the visible height, and leaves the window at the
// origin.
func (d *Driver) ClearScreen(cs ChipSelect) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clearScreen(cs)
}

func (d *Driver) clearScreen(cs ChipSelect) error {
	g := d.cfg.Geometry
	rowBytes := g.Width * d.cfg.BytesPerPixel
	for y := 0; y < g.ActualHeight; y++ {
		if err := d.setCursor(cs, y); err != nil {
			return err
		}
		if err := d.clearRow(cs, rowBytes); err != nil {
			return fmt.Errorf("panel: clear row %d on %v: %w", y, cs, err)
		}
	}
	return d.setCursor(cs, 0)
}

// clearRow pushes one zeroed row through a pixel task. The task is always
// released before returning.
func (d *Driver) clearRow(cs ChipSelect, size int) error {
	t, err := d.tasks.AllocTask(cs, size)
	if err != nil {
		return err
	}
	defer d.tasks.DoneTask(t)

	t.Cmd = cmdMemoryWrite
	clear(t.Data)
	if err := d.tasks.CommitTask(t); err != nil {
		return err
	}
	return d.tasks.RunTask(t)
}
