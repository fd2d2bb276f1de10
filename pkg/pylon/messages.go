// Package pylon implements the host protocol of the pack: the host asks
// with a request frame and the pack answers with fixed 8 byte, little
// endian messages, each on its own extended CAN id.
package pylon

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame ids
const (
	RequestID                 uint32 = 0x4200
	StatusID                  uint32 = 0x4210
	ChargeDischargeParamsID   uint32 = 0x4220
	CellVoltageStatusID       uint32 = 0x4230
	CellTemperatureStatusID   uint32 = 0x4240
	BitsID                    uint32 = 0x4250
	ModuleVoltageStatusID     uint32 = 0x4260
	ModuleTemperatureStatusID uint32 = 0x4270
	ChargeDischargeStatusID   uint32 = 0x4280
	FaultExtensionInfoID      uint32 = 0x4290
	EquipmentInfo1ID          uint32 = 0x7310
	EquipmentInfo2ID          uint32 = 0x7320
)

// MessageSize is the payload size of every message.
const MessageSize = 8

// Host protocol offsets
const (
	// CurrentOffset biases currents in 0.1 A by 3000 A.
	CurrentOffset = 30000
	// TemperatureOffset biases temperatures in 0.1 °C by 100 °C.
	TemperatureOffset = 1000
)

var (
	// ErrInvalidRequest indicates a malformed host request.
	ErrInvalidRequest = errors.New("invalid host request")
	// ErrInvalidMessage indicates a payload not matching its message.
	ErrInvalidMessage = errors.New("invalid message")
)

// RequestType selects what the host asks for.
type RequestType uint8

// Request types
const (
	EnsembleInformation        RequestType = 0
	SystemEquipmentInformation RequestType = 2
)

func (t RequestType) String() string {
	switch t {
	case EnsembleInformation:
		return "ensemble"
	case SystemEquipmentInformation:
		return "equipment"
	}
	return fmt.Sprintf("request(%d)", uint8(t))
}

// Request is the host request.
type Request struct {
	Type RequestType
}

// MarshalBinary encodes the 8 byte request.
func (r Request) MarshalBinary() ([]byte, error) {
	b := make([]byte, MessageSize)
	b[0] = byte(r.Type)
	return b, nil
}

// ParseRequest decodes a request payload.
func ParseRequest(payload []byte) (Request, error) {
	if len(payload) != MessageSize {
		return Request{}, fmt.Errorf("%w: %d bytes", ErrInvalidRequest, len(payload))
	}
	return Request{Type: RequestType(payload[0])}, nil
}

// Message is a response message.
type Message interface {
	ID() uint32
	MarshalBinary() ([]byte, error)
	UnmarshalBinary([]byte) error
}

func putUint16s(vals ...uint16) []byte {
	b := make([]byte, MessageSize)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return b
}

func checkSize(name string, b []byte) error {
	if len(b) != MessageSize {
		return fmt.Errorf("%w: %s has %d bytes", ErrInvalidMessage, name, len(b))
	}
	return nil
}

func u16(b []byte, i int) uint16 {
	return binary.LittleEndian.Uint16(b[i*2:])
}

// Status reports pack voltage (0.1 V), current (0.1 A, offset),
// temperature (0.1 °C, offset), SOC and SOH (%).
type Status struct {
	TotalVoltage uint16
	Current      uint16
	Temperature  uint16
	SOC          uint8
	SOH          uint8
}

// ID implements Message.
func (m *Status) ID() uint32 { return StatusID }

// MarshalBinary implements Message.
func (m *Status) MarshalBinary() ([]byte, error) {
	b := putUint16s(m.TotalVoltage, m.Current, m.Temperature)
	b[6], b[7] = m.SOC, m.SOH
	return b, nil
}

// UnmarshalBinary implements Message.
func (m *Status) UnmarshalBinary(b []byte) error {
	if err := checkSize("status", b); err != nil {
		return err
	}
	m.TotalVoltage, m.Current, m.Temperature = u16(b, 0), u16(b, 1), u16(b, 2)
	m.SOC, m.SOH = b[6], b[7]
	return nil
}

// ChargeDischargeParams reports cutoff voltages (0.1 V) and current
// limits (0.1 A, offset).
type ChargeDischargeParams struct {
	ChargeCutoffVoltage    uint16
	DischargeCutoffVoltage uint16
	MaxChargeCurrent       uint16
	MaxDischargeCurrent    uint16
}

// ID implements Message.
func (m *ChargeDischargeParams) ID() uint32 { return ChargeDischargeParamsID }

// MarshalBinary implements Message.
func (m *ChargeDischargeParams) MarshalBinary() ([]byte, error) {
	return putUint16s(m.ChargeCutoffVoltage, m.DischargeCutoffVoltage, m.MaxChargeCurrent, m.MaxDischargeCurrent), nil
}

// UnmarshalBinary implements Message.
func (m *ChargeDischargeParams) UnmarshalBinary(b []byte) error {
	if err := checkSize("charge/discharge params", b); err != nil {
		return err
	}
	m.ChargeCutoffVoltage, m.DischargeCutoffVoltage = u16(b, 0), u16(b, 1)
	m.MaxChargeCurrent, m.MaxDischargeCurrent = u16(b, 2), u16(b, 3)
	return nil
}

// Extrema is the max/min value pair with their indices shared by the
// cell and module voltage/temperature messages.
type Extrema struct {
	Max      uint16
	Min      uint16
	MaxIndex uint16
	MinIndex uint16
}

func (e *Extrema) marshal() []byte {
	return putUint16s(e.Max, e.Min, e.MaxIndex, e.MinIndex)
}

func (e *Extrema) unmarshal(name string, b []byte) error {
	if err := checkSize(name, b); err != nil {
		return err
	}
	e.Max, e.Min, e.MaxIndex, e.MinIndex = u16(b, 0), u16(b, 1), u16(b, 2), u16(b, 3)
	return nil
}

// CellVoltageStatus reports cell voltage extrema in mV.
type CellVoltageStatus struct{ Extrema }

// ID implements Message.
func (m *CellVoltageStatus) ID() uint32 { return CellVoltageStatusID }

// MarshalBinary implements Message.
func (m *CellVoltageStatus) MarshalBinary() ([]byte, error) { return m.marshal(), nil }

// UnmarshalBinary implements Message.
func (m *CellVoltageStatus) UnmarshalBinary(b []byte) error {
	return m.unmarshal("cell voltage status", b)
}

// CellTemperatureStatus reports cell temperature extrema (0.1 °C, offset).
type CellTemperatureStatus struct{ Extrema }

// ID implements Message.
func (m *CellTemperatureStatus) ID() uint32 { return CellTemperatureStatusID }

// MarshalBinary implements Message.
func (m *CellTemperatureStatus) MarshalBinary() ([]byte, error) { return m.marshal(), nil }

// UnmarshalBinary implements Message.
func (m *CellTemperatureStatus) UnmarshalBinary(b []byte) error {
	return m.unmarshal("cell temperature status", b)
}

// ModuleVoltageStatus reports module voltage extrema.
type ModuleVoltageStatus struct{ Extrema }

// ID implements Message.
func (m *ModuleVoltageStatus) ID() uint32 { return ModuleVoltageStatusID }

// MarshalBinary implements Message.
func (m *ModuleVoltageStatus) MarshalBinary() ([]byte, error) { return m.marshal(), nil }

// UnmarshalBinary implements Message.
func (m *ModuleVoltageStatus) UnmarshalBinary(b []byte) error {
	return m.unmarshal("module voltage status", b)
}

// ModuleTemperatureStatus reports module temperature extrema (0.1 °C, offset).
type ModuleTemperatureStatus struct{ Extrema }

// ID implements Message.
func (m *ModuleTemperatureStatus) ID() uint32 { return ModuleTemperatureStatusID }

// MarshalBinary implements Message.
func (m *ModuleTemperatureStatus) MarshalBinary() ([]byte, error) { return m.marshal(), nil }

// UnmarshalBinary implements Message.
func (m *ModuleTemperatureStatus) UnmarshalBinary(b []byte) error {
	return m.unmarshal("module temperature status", b)
}

// Bits reports status, faults, alarms and protections.
type Bits struct {
	Status      StatusBits
	CyclePeriod uint16
	Fault       FaultBits
	Alarm       AlarmBits
	Protection  ProtectionBits
}

// ID implements Message.
func (m *Bits) ID() uint32 { return BitsID }

// MarshalBinary implements Message.
func (m *Bits) MarshalBinary() ([]byte, error) {
	b := make([]byte, MessageSize)
	b[0] = m.Status.Byte()
	binary.LittleEndian.PutUint16(b[1:], m.CyclePeriod)
	b[3] = byte(m.Fault)
	binary.LittleEndian.PutUint16(b[4:], uint16(m.Alarm))
	binary.LittleEndian.PutUint16(b[6:], uint16(m.Protection))
	return b, nil
}

// UnmarshalBinary implements Message.
func (m *Bits) UnmarshalBinary(b []byte) error {
	if err := checkSize("bits", b); err != nil {
		return err
	}
	m.Status = ParseStatusBits(b[0])
	m.CyclePeriod = binary.LittleEndian.Uint16(b[1:])
	m.Fault = FaultBits(b[3])
	m.Alarm = AlarmBits(binary.LittleEndian.Uint16(b[4:]))
	m.Protection = ProtectionBits(binary.LittleEndian.Uint16(b[6:]))
	return nil
}

// ChargeDischargeStatus reports the forbid flags.
type ChargeDischargeStatus struct {
	ChargeForbidden    bool
	DischargeForbidden bool
}

// ID implements Message.
func (m *ChargeDischargeStatus) ID() uint32 { return ChargeDischargeStatusID }

// MarshalBinary implements Message.
func (m *ChargeDischargeStatus) MarshalBinary() ([]byte, error) {
	b := make([]byte, MessageSize)
	if m.ChargeForbidden {
		b[0] = 1
	}
	if m.DischargeForbidden {
		b[1] = 1
	}
	return b, nil
}

// UnmarshalBinary implements Message.
func (m *ChargeDischargeStatus) UnmarshalBinary(b []byte) error {
	if err := checkSize("charge/discharge status", b); err != nil {
		return err
	}
	m.ChargeForbidden, m.DischargeForbidden = b[0] != 0, b[1] != 0
	return nil
}

// FaultExtensionInfo reports extended faults.
type FaultExtensionInfo struct {
	Faults FaultExtBits
}

// ID implements Message.
func (m *FaultExtensionInfo) ID() uint32 { return FaultExtensionInfoID }

// MarshalBinary implements Message.
func (m *FaultExtensionInfo) MarshalBinary() ([]byte, error) {
	b := make([]byte, MessageSize)
	b[0] = byte(m.Faults)
	return b, nil
}

// UnmarshalBinary implements Message.
func (m *FaultExtensionInfo) UnmarshalBinary(b []byte) error {
	if err := checkSize("fault extension info", b); err != nil {
		return err
	}
	m.Faults = FaultExtBits(b[0])
	return nil
}

// EquipmentInfo1 reports hardware and software versions.
type EquipmentInfo1 struct {
	HardwareVersionCode byte
	HardwareVersionV    byte
	HardwareVersionR    byte
	SoftwareMajor       byte
	SoftwareMinor       byte
	SoftwareDevMajor    byte
	SoftwareDevMinor    byte
}

// ID implements Message.
func (m *EquipmentInfo1) ID() uint32 { return EquipmentInfo1ID }

// MarshalBinary implements Message.
func (m *EquipmentInfo1) MarshalBinary() ([]byte, error) {
	return []byte{
		m.HardwareVersionCode, 0, m.HardwareVersionV, m.HardwareVersionR,
		m.SoftwareMajor, m.SoftwareMinor, m.SoftwareDevMajor, m.SoftwareDevMinor,
	}, nil
}

// UnmarshalBinary implements Message.
func (m *EquipmentInfo1) UnmarshalBinary(b []byte) error {
	if err := checkSize("equipment info 1", b); err != nil {
		return err
	}
	m.HardwareVersionCode, m.HardwareVersionV, m.HardwareVersionR = b[0], b[2], b[3]
	m.SoftwareMajor, m.SoftwareMinor = b[4], b[5]
	m.SoftwareDevMajor, m.SoftwareDevMinor = b[6], b[7]
	return nil
}

// EquipmentInfo2 reports the pack composition.
type EquipmentInfo2 struct {
	ModuleQty        uint16
	ModulesInSeries  uint8
	CellsPerModule   uint8
	VoltageLevel     uint16
	AmpereHourNumber uint16
}

// ID implements Message.
func (m *EquipmentInfo2) ID() uint32 { return EquipmentInfo2ID }

// MarshalBinary implements Message.
func (m *EquipmentInfo2) MarshalBinary() ([]byte, error) {
	b := putUint16s(m.ModuleQty, 0, m.VoltageLevel, m.AmpereHourNumber)
	b[2], b[3] = m.ModulesInSeries, m.CellsPerModule
	return b, nil
}

// UnmarshalBinary implements Message.
func (m *EquipmentInfo2) UnmarshalBinary(b []byte) error {
	if err := checkSize("equipment info 2", b); err != nil {
		return err
	}
	m.ModuleQty, m.ModulesInSeries, m.CellsPerModule = u16(b, 0), b[2], b[3]
	m.VoltageLevel, m.AmpereHourNumber = u16(b, 2), u16(b, 3)
	return nil
}
