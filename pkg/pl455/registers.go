package pl455

// Registers
const (
	RegCommand       byte = 0x02
	RegChannels      byte = 0x03
	RegOversampling  byte = 0x07
	RegAddress       byte = 0x0A
	RegDevControl    byte = 0x0C
	RegCellCount     byte = 0x0D
	RegDevConfig     byte = 0x0E
	RegPowerConfig   byte = 0x0F
	RegCommConfig    byte = 0x10
	RegBalanceConfig byte = 0x13
	RegBalanceEnable byte = 0x14
	RegFuncConfig    byte = 0x1E
	RegCommTimeout   byte = 0x28
	RegAutoMonitor   byte = 0x32
	RegCellSampling  byte = 0x3E
	RegAuxSampling   byte = 0x3F
)

// Comm config (register 0x10), first byte.
const (
	commUART     byte = 0x80
	commHighSide byte = 0x40
	commLowSide  byte = 0x20

	// everything but the fault lines
	commAll = commUART | commHighSide | commLowSide
)

// startAutoAddress is written to RegDevControl to begin auto addressing.
const startAutoAddress byte = 0x08

// RegisterWrite is one broadcast register write.
type RegisterWrite struct {
	Reg  byte
	Data []byte
}

// DefaultConfiguration is broadcast to all chips before discovery.
// Data is in logical order, least significant byte first on the wire.
var DefaultConfiguration = []RegisterWrite{
	// same channel sampled repeatedly, 12.6us, 8x oversampling
	{RegOversampling, []byte{0x7B}},
	{RegCellCount, []byte{16}},
	// internal regulator on, auto addressing, comparators off
	{RegDevConfig, []byte{0x19}},
	{RegPowerConfig, []byte{0x80}},
	// balancing lasts 1 s after enable and continues through faults
	{RegBalanceConfig, []byte{0x88}},
	// module voltage readings on
	{RegFuncConfig, []byte{0x01, 0x00}},
	// shut down 5 s after the last communication
	{RegCommTimeout, []byte{0x55}},
	{RegAutoMonitor, []byte{0x00}},
	// sample all cells, all aux channels and the module voltage
	{RegChannels, []byte{0x02, 0xFF, 0xFF, 0xFF}},
	{RegCellSampling, []byte{0xCD}},
	{RegAuxSampling, []byte{0x44, 0x44, 0x44, 0x44}},
}

// CommConfig returns the comm config payload for a chip at position
// index in a chain of count chips. A single chip only talks over UART;
// the first of several also enables the high side link, the last only
// its low side link.
func CommConfig(index, count int, baud byte) []byte {
	var b byte
	switch {
	case count == 1:
		b = commUART
	case index == 0:
		b = commUART | commHighSide
	case index == count-1:
		b = commLowSide
	default:
		b = commHighSide | commLowSide
	}
	return []byte{b, baud << 4}
}
