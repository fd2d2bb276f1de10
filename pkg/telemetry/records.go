// Package telemetry defines the per-module records distributed between
// nodes and reassembles them into complete module snapshots.
package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Record counts per module
const (
	NumCells = 32
	NumADC   = 16
)

// Record sizes on the wire
const (
	ModuleStateSize = 8
	CellRecordSize  = 3
	ADCRecordSize   = 2
)

// ErrShortPayload indicates a payload smaller than its record.
var ErrShortPayload = errors.New("short payload")

// CellRecord is the state of one cell.
type CellRecord struct {
	// Voltage in 0.1 mV.
	Voltage   uint16
	Balancing bool
}

// MarshalBinary encodes voltage (LE u16) and the balancing byte.
func (r CellRecord) MarshalBinary() ([]byte, error) {
	b := make([]byte, CellRecordSize)
	binary.LittleEndian.PutUint16(b, r.Voltage)
	if r.Balancing {
		b[2] = 1
	}
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *CellRecord) UnmarshalBinary(b []byte) error {
	if len(b) < CellRecordSize {
		return fmt.Errorf("%w: cell record %d bytes", ErrShortPayload, len(b))
	}
	r.Voltage = binary.LittleEndian.Uint16(b)
	r.Balancing = b[2] != 0
	return nil
}

// ModuleState is the electrical state of a module.
// M1 covers cells 0-15 and M2 cells 16-31, both in 0.1 V.
type ModuleState struct {
	M1 uint16
	M2 uint16
	// Current in 0.1 mA.
	Current int16
	// Temperature in 0.1 °C.
	Temperature uint16
}

// Voltage returns the module voltage in 0.1 V.
func (s ModuleState) Voltage() int {
	return int(s.M1) + int(s.M2)
}

// MarshalBinary encodes the 8 byte little endian layout
// m1, m2, current, temperature.
func (s ModuleState) MarshalBinary() ([]byte, error) {
	b := make([]byte, ModuleStateSize)
	binary.LittleEndian.PutUint16(b[0:], s.M1)
	binary.LittleEndian.PutUint16(b[2:], s.M2)
	binary.LittleEndian.PutUint16(b[4:], uint16(s.Current))
	binary.LittleEndian.PutUint16(b[6:], s.Temperature)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *ModuleState) UnmarshalBinary(b []byte) error {
	if len(b) < ModuleStateSize {
		return fmt.Errorf("%w: module state %d bytes", ErrShortPayload, len(b))
	}
	s.M1 = binary.LittleEndian.Uint16(b[0:])
	s.M2 = binary.LittleEndian.Uint16(b[2:])
	s.Current = int16(binary.LittleEndian.Uint16(b[4:]))
	s.Temperature = binary.LittleEndian.Uint16(b[6:])
	return nil
}

func encodeADC(v uint16) []byte {
	b := make([]byte, ADCRecordSize)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func decodeADC(b []byte) (uint16, error) {
	if len(b) < ADCRecordSize {
		return 0, fmt.Errorf("%w: adc record %d bytes", ErrShortPayload, len(b))
	}
	return binary.LittleEndian.Uint16(b), nil
}
