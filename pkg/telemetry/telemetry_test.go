package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordLayouts(t *testing.T) {
	state := ModuleState{M1: 0x1234, M2: 0x5678, Current: -2, Temperature: 250}
	b, err := state.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, []byte{0x34, 0x12, 0x78, 0x56, 0xfe, 0xff, 0xfa, 0x00}, b)
	var decoded ModuleState
	require.NoError(t, decoded.UnmarshalBinary(b))
	require.Equal(t, state, decoded)
	require.Equal(t, 0x1234+0x5678, decoded.Voltage())

	cell := CellRecord{Voltage: 36500, Balancing: true}
	b, err = cell.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, []byte{0x94, 0x8e, 0x01}, b)

	require.True(t, errors.Is(decoded.UnmarshalBinary(b), ErrShortPayload))
}

func TestAddress(t *testing.T) {
	testCases := []struct {
		module  int
		kind    RecordKind
		channel int
		expect  uint32
	}{
		{0, KindModuleState, 0, 0x11DD0000},
		{1, KindModuleState, 0, 0x11DD1000},
		{0, KindCell, 31, 0x11DD011F},
		{2, KindADC, 15, 0x11DD220F},
	}
	for _, tc := range testCases {
		id := Address(tc.module, tc.kind, tc.channel)
		require.Equal(t, tc.expect, id)
		require.True(t, IsTelemetry(id))
		module, kind, channel := ParseAddress(id)
		require.Equal(t, tc.module, module)
		require.Equal(t, tc.kind, kind)
		require.Equal(t, tc.channel, channel)
	}
	require.False(t, IsTelemetry(0x4200))
}

func fullSnapshot() *ModuleSnapshot {
	var s ModuleSnapshot
	s.State = ModuleState{M1: 560, M2: 565, Current: 100, Temperature: 250}
	for i := range s.Cells {
		s.Cells[i] = CellRecord{Voltage: uint16(33000 + i), Balancing: i%2 == 0}
	}
	for i := range s.ADC {
		s.ADC[i] = uint16(1000 * i)
	}
	return &s
}

func TestSnapshotLazyReset(t *testing.T) {
	src := fullSnapshot()
	frags := Fragments(3, src)
	require.Len(t, frags, NumFragments)

	var s ModuleSnapshot
	for n, f := range frags {
		require.False(t, s.IsComplete(), "fragment %d", n)
		require.NoError(t, s.SetRawData(f.ID, f.Payload))
	}
	require.True(t, s.IsComplete())
	require.Equal(t, src.State, s.State)
	require.Equal(t, src.Cells, s.Cells)
	require.Equal(t, src.ADC, s.ADC)

	// complete snapshot stays complete until the next write
	require.True(t, s.IsComplete())

	require.NoError(t, s.SetRawData(Address(3, KindCell, 5), []byte{1, 0, 0}))
	require.False(t, s.IsComplete())
	state, cells, adc := s.Masks()
	require.False(t, state)
	require.Equal(t, uint32(1<<5), cells)
	require.Equal(t, uint16(0), adc)
	require.Equal(t, uint16(1), s.Cells[5].Voltage)
}

func TestSnapshotIgnoresOutOfRange(t *testing.T) {
	var s ModuleSnapshot
	require.NoError(t, s.SetRawData(BaseAddress+CellStateOffset+32, []byte{1, 2, 3}))
	require.NoError(t, s.SetRawData(BaseAddress+ADCVoltageOffset+16, []byte{1, 2}))
	require.NoError(t, s.SetRawData(BaseAddress+0x300, []byte{1, 2}))
	state, cells, adc := s.Masks()
	require.False(t, state)
	require.Zero(t, cells)
	require.Zero(t, adc)

	err := s.SetRawData(BaseAddress+ADCVoltageOffset, []byte{1})
	require.True(t, errors.Is(err, ErrShortPayload))
}

func TestAssembler(t *testing.T) {
	a := NewAssembler(2)
	src := fullSnapshot()
	var completed int
	for _, f := range Fragments(1, src) {
		module, complete, err := a.Apply(f.ID, f.Payload)
		require.NoError(t, err)
		require.Equal(t, 1, module)
		if complete {
			completed++
		}
	}
	require.Equal(t, 1, completed)
	snap := a.Snapshot(1)
	require.True(t, snap.IsComplete())
	require.Equal(t, src.Cells, snap.Cells)
	require.False(t, a.Snapshot(0).IsComplete())

	_, _, err := a.Apply(Address(2, KindModuleState, 0), make([]byte, 8))
	require.True(t, errors.Is(err, ErrModuleRange))
	_, _, err = a.Apply(0x4200, make([]byte, 8))
	require.Error(t, err)
}
