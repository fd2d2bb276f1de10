package pylon

import "fmt"

// State is the operating state of the pack.
type State uint8

// States
const (
	StateSleep     State = 0
	StateCharge    State = 1
	StateDischarge State = 2
	StateIdle      State = 3
)

func (s State) String() string {
	switch s {
	case StateSleep:
		return "sleep"
	case StateCharge:
		return "charge"
	case StateDischarge:
		return "discharge"
	case StateIdle:
		return "idle"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// StatusBits is the basic status byte: state in bits 0-2, forced charge
// request in bit 3, balance charge request in bit 4.
type StatusBits struct {
	State         State
	ForcedCharge  bool
	BalanceCharge bool
}

const (
	statusStateMask    = 0x07
	statusForcedCharge = 1 << 3
	statusBalance      = 1 << 4
)

// Byte encodes the status bits.
func (s StatusBits) Byte() byte {
	b := byte(s.State) & statusStateMask
	if s.ForcedCharge {
		b |= statusForcedCharge
	}
	if s.BalanceCharge {
		b |= statusBalance
	}
	return b
}

// ParseStatusBits decodes the status byte.
func ParseStatusBits(b byte) StatusBits {
	return StatusBits{
		State:         State(b & statusStateMask),
		ForcedCharge:  b&statusForcedCharge != 0,
		BalanceCharge: b&statusBalance != 0,
	}
}

// FaultBits are the system faults.
type FaultBits uint8

// Faults
const (
	FaultVoltageSensor FaultBits = 1 << iota
	FaultTemperatureSensor
	FaultInternalComm
	FaultInputOverVoltage
	FaultInputTransposition
	FaultRelayCheck
	FaultBatteryDamage
	FaultOther
)

// AlarmBits are warnings: low/high voltages, temperatures and currents.
type AlarmBits uint16

// Alarms
const (
	// battery (cell) low/high voltage
	AlarmBLV AlarmBits = 1 << iota
	AlarmBHV
	// pack low/high voltage
	AlarmPLV
	AlarmPHV
	// charge low/high temperature
	AlarmCLT
	AlarmCHT
	// discharge low/high temperature
	AlarmDLT
	AlarmDHT
	// charge/discharge over current
	AlarmCOCA
	AlarmDOCA
	// module low/high voltage
	AlarmMLV
	AlarmMHV
)

// ProtectionBits are protections triggered, named like AlarmBits.
type ProtectionBits uint16

// Protections
const (
	ProtectBUV ProtectionBits = 1 << iota
	ProtectBOV
	ProtectPUV
	ProtectPOV
	ProtectCUT
	ProtectCOT
	ProtectDUT
	ProtectDOT
	ProtectCOC
	ProtectDOC
	ProtectMUV
	ProtectMOV
)

// FaultExtBits are extended faults.
type FaultExtBits uint8

// Extended faults
const (
	FaultExtShutdownCircuit FaultExtBits = 1 << iota
	FaultExtBMIC
	FaultExtInternalBus
	FaultExtPowerOnSelfTest
	FaultExtSafetyFunction
)

// Has indicates any of flags is set.
func (b FaultBits) Has(flags FaultBits) bool { return b&flags != 0 }

// Has indicates any of flags is set.
func (b AlarmBits) Has(flags AlarmBits) bool { return b&flags != 0 }

// Has indicates any of flags is set.
func (b ProtectionBits) Has(flags ProtectionBits) bool { return b&flags != 0 }

// Has indicates any of flags is set.
func (b FaultExtBits) Has(flags FaultExtBits) bool { return b&flags != 0 }
