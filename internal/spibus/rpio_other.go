//go:build !linux

package spibus

import "fmt"

// RPIO is only available on linux, where /dev/gpiomem exists.
type RPIO struct {
	Backend
}

// OpenRPIO always fails on this platform.
func OpenRPIO(Options) (*RPIO, error) {
	return nil, fmt.Errorf("%w: rpio driver needs linux", ErrUnsupported)
}
