package panel

import "fmt"

// encodeRange frames the inclusive range [lo, hi] for a cursor command.
func encodeRange(w BusWidth, lo, hi int) []byte {
	switch w {
	case Wide16:
		return []byte{
			0, byte(lo >> 8), 0, byte(lo & 0xFF),
			0, byte(hi >> 8), 0, byte(hi & 0xFF),
		}
	case Cursor8:
		return []byte{byte(lo), byte(hi)}
	default:
		return []byte{byte(lo >> 8), byte(lo & 0xFF), byte(hi >> 8), byte(hi & 0xFF)}
	}
}

// setCursor points the controller window at columns [0, Width-1] and rows
// [y, ActualHeight-1].
func (d *Driver) setCursor(cs ChipSelect, y int) error {
	g := d.cfg.Geometry
	if err := d.bus.Transfer(cs, cmdColumnAddr, encodeRange(d.cfg.BusWidth, 0, g.Width-1)...); err != nil {
		return fmt.Errorf("panel: set cursor x on %v: %w", cs, err)
	}
	if err := d.bus.Transfer(cs, cmdRowAddr, encodeRange(d.cfg.BusWidth, y, g.ActualHeight-1)...); err != nil {
		return fmt.Errorf("panel: set cursor y=%d on %v: %w", y, cs, err)
	}
	return nil
}
