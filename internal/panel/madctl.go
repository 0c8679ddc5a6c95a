package panel

// MADCTL (Memory Access Control) bits.
const (
	MADCTLBGR               byte = 1 << 3
	MADCTLRowColumnExchange byte = 1 << 5
	MADCTLColumnAddressSwap byte = 1 << 6
	MADCTLRowAddressSwap    byte = 1 << 7
	MADCTLRotate180              = MADCTLColumnAddressSwap | MADCTLRowAddressSwap
)

// MADCTL composes the memory access control byte. The steps are applied in
// a fixed order: family pixel order, BGR swap, axis exchange, the row
// address swap every module here needs, vendor HAT rotation, user rotation.
func (c Config) MADCTL() byte {
	var m byte
	if c.Family.bgrByDefault() {
		m |= MADCTLBGR
	}
	if c.SwapBGR {
		m ^= MADCTLBGR
	}
	if c.FlipOrientation {
		m |= MADCTLRowColumnExchange
	}

	m |= MADCTLRowAddressSwap

	if c.WaveshareHAT {
		m ^= MADCTLRotate180
	}
	if c.Rotate180 {
		m ^= MADCTLRotate180
	}
	return m
}

// verticalScroll returns the VSCSAD offset that brings a row-swapped window
// back into the visible part of controller RAM. ok is false when no scroll
// is needed.
//
// An ST7789 has 320 rows of RAM but shows 240 of them. With the row address
// order swapped, writes to Y=0..239 land at Y=319..80, so the view is
// scrolled by 320-240 rows.
func (c Config) verticalScroll() (offset int, ok bool) {
	if !c.Family.isST7789() {
		return 0, false
	}
	if c.MADCTL()&MADCTLRowAddressSwap == 0 {
		return 0, false
	}
	g := c.Geometry
	if g.ActualHeight <= g.Height {
		return 0, false
	}
	return g.ActualHeight - g.Width, true
}
