package spibus

import "bytes"

// go-rpio derives the SPI0 CDIV register from a fixed core clock: 550 MHz
// on BCM2711 (Pi 4, Pi 400, CM4), 250 MHz on earlier chips.
const (
	rpioCoreClock     = 250_000_000
	rpioCoreClock2711 = 550_000_000
)

// deviceTreeCompatible lists the SoC names of the running board.
const deviceTreeCompatible = "/proc/device-tree/compatible"

// rpioCoreClockFor returns the core clock go-rpio divides by on the board
// described by a device tree compatible string.
func rpioCoreClockFor(compatible []byte) int {
	if bytes.Contains(compatible, []byte("bcm2711")) {
		return rpioCoreClock2711
	}
	return rpioCoreClock
}

// rpioSpeed returns the rpio.SpiSpeed argument that makes go-rpio write div
// into CDIV.
func rpioSpeed(core int, div uint32) int {
	return core / int(div)
}
