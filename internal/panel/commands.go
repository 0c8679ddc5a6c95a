package panel

// Controller opcodes used by bring-up and clear.
const (
	cmdNOP         = 0x00
	cmdSoftReset   = 0x01
	cmdSleepOut    = 0x11
	cmdPartialOff  = 0x13 // NORON
	cmdInvertOff   = 0x20
	cmdInvertOn    = 0x21
	cmdGammaCurve  = 0x26
	cmdDisplayOn   = 0x29
	cmdColumnAddr  = 0x2A // set cursor X
	cmdRowAddr     = 0x2B // set cursor Y
	cmdMemoryWrite = 0x2C // write pixels
	cmdMADCTL      = 0x36
	cmdVScrollAddr = 0x37 // VSCSAD
	cmdPixelFormat = 0x3A // COLMOD
	cmdFrameRate1  = 0xB1 // FRMCTR1
	cmdGammaEnable = 0xBA // DGMEN, ST7789 only
)

const (
	gammaCurve3    = 0x04 // 2.5 if GS=1, 2.2 otherwise
	pixelFormat16  = 0x05
	gammaEnableArg = 0x04
)

// Frame rate = 850000 / ((2*RTNA+40) * (162+FPA+BPA)), about 99.67Hz.
var frameRateArgs = []byte{6, 1, 1}

// SlowClockDivisor is the divisor used while the init sequence runs, low
// enough to work whatever operating speed the user picked.
const SlowClockDivisor = 34

// Opcode exports for callers that inspect recorded traffic.
const (
	OpSetCursorX  byte = cmdColumnAddr
	OpSetCursorY  byte = cmdRowAddr
	OpWritePixels byte = cmdMemoryWrite
	OpNOP         byte = cmdNOP
)
