package telemetry

import (
	"fmt"
)

// Completeness masks
const (
	allCells uint32 = 0xFFFFFFFF
	allADC   uint16 = 0xFFFF
)

// ModuleSnapshot is the full telemetry of one module. Its masks track
// which records have been written since the last complete snapshot.
type ModuleSnapshot struct {
	State ModuleState
	Cells [NumCells]CellRecord
	ADC   [NumADC]uint16

	stateSet bool
	cellMask uint32
	adcMask  uint16
}

// IsComplete indicates every record has been written.
func (s ModuleSnapshot) IsComplete() bool {
	return s.stateSet && s.cellMask == allCells && s.adcMask == allADC
}

// Masks returns the completeness flags.
func (s ModuleSnapshot) Masks() (state bool, cells uint32, adc uint16) {
	return s.stateSet, s.cellMask, s.adcMask
}

// SetRawData applies one record addressed by id. Module bits of id are
// ignored. A complete snapshot stays intact until this is called again,
// which clears all masks first and starts a new cycle. Channels out of
// range and unknown record kinds are ignored.
func (s *ModuleSnapshot) SetRawData(id uint32, payload []byte) error {
	if s.IsComplete() {
		s.stateSet, s.cellMask, s.adcMask = false, 0, 0
	}
	_, kind, channel := ParseAddress(id)
	switch kind {
	case KindModuleState:
		if err := s.State.UnmarshalBinary(payload); err != nil {
			return err
		}
		s.stateSet = true
	case KindCell:
		if channel >= NumCells {
			return nil
		}
		if err := s.Cells[channel].UnmarshalBinary(payload); err != nil {
			return err
		}
		s.cellMask |= 1 << uint(channel)
	case KindADC:
		if channel >= NumADC {
			return nil
		}
		v, err := decodeADC(payload)
		if err != nil {
			return err
		}
		s.ADC[channel] = v
		s.adcMask |= 1 << uint(channel)
	}
	return nil
}

// SetComplete fills in all records at once and marks the snapshot complete.
func (s *ModuleSnapshot) SetComplete(state ModuleState, cells [NumCells]CellRecord, adc [NumADC]uint16) {
	s.State, s.Cells, s.ADC = state, cells, adc
	s.stateSet, s.cellMask, s.adcMask = true, allCells, allADC
}

// Fragment is one addressed record.
type Fragment struct {
	ID      uint32
	Payload []byte
}

func (f Fragment) String() string {
	module, kind, channel := ParseAddress(f.ID)
	return fmt.Sprintf("%08x module=%d %s[%d] % x", f.ID, module, kind, channel, f.Payload)
}

// NumFragments is the number of records in a snapshot.
const NumFragments = 1 + NumCells + NumADC

// Fragments splits a snapshot into its records addressed to module:
// the module state first, then cells, then ADC channels.
func Fragments(module int, s *ModuleSnapshot) []Fragment {
	frags := make([]Fragment, 0, NumFragments)
	state, _ := s.State.MarshalBinary()
	frags = append(frags, Fragment{ID: Address(module, KindModuleState, 0), Payload: state})
	for i := range s.Cells {
		b, _ := s.Cells[i].MarshalBinary()
		frags = append(frags, Fragment{ID: Address(module, KindCell, i), Payload: b})
	}
	for i, v := range s.ADC {
		frags = append(frags, Fragment{ID: Address(module, KindADC, i), Payload: encodeADC(v)})
	}
	return frags
}
