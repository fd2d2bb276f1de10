package msgs

import (
	"time"

	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/bms.go/pkg/framework"
	pb "github.com/robotalks/bms.go/pkg/proto/bms/v1"
	"github.com/robotalks/bms.go/pkg/pylon"
	"github.com/robotalks/bms.go/pkg/telemetry"
)

// TypeID Groups
const (
	GroupTelemetry uint32 = 0x00010000
)

// TypeIDs
const (
	ModuleSnapshotTypeID uint32 = TypeIDKindEvent | GroupTelemetry | 0x0001
	PackStatusTypeID     uint32 = TypeIDKindEvent | GroupTelemetry | 0x0002
)

// ModuleSnapshot event.
type ModuleSnapshot struct {
	pb.ModuleSnapshot
}

// NewModuleSnapshot creates the event from a module snapshot.
func NewModuleSnapshot(node string, module int, snap *telemetry.ModuleSnapshot, now time.Time) *ModuleSnapshot {
	m := &ModuleSnapshot{
		ModuleSnapshot: pb.ModuleSnapshot{
			Node:         node,
			Module:       uint32(module),
			M1:           uint32(snap.State.M1),
			M2:           uint32(snap.State.M2),
			Current:      int32(snap.State.Current),
			Temperature:  uint32(snap.State.Temperature),
			CellVoltages: make([]uint32, telemetry.NumCells),
			Adc:          make([]uint32, telemetry.NumADC),
			Timestamp:    now.UnixNano() / int64(time.Millisecond),
		},
	}
	for n, cell := range snap.Cells {
		m.CellVoltages[n] = uint32(cell.Voltage)
		if cell.Balancing {
			m.Balancing |= 1 << uint(n)
		}
	}
	for n, v := range snap.ADC {
		m.Adc[n] = uint32(v)
	}
	return m
}

// Snapshot converts the event back into a module snapshot.
func (m *ModuleSnapshot) Snapshot() telemetry.ModuleSnapshot {
	var (
		snap  telemetry.ModuleSnapshot
		cells [telemetry.NumCells]telemetry.CellRecord
		adc   [telemetry.NumADC]uint16
	)
	for n := 0; n < len(cells) && n < len(m.CellVoltages); n++ {
		cells[n].Voltage = uint16(m.CellVoltages[n])
		cells[n].Balancing = m.Balancing&(1<<uint(n)) != 0
	}
	for n := 0; n < len(adc) && n < len(m.Adc); n++ {
		adc[n] = uint16(m.Adc[n])
	}
	snap.SetComplete(telemetry.ModuleState{
		M1:          uint16(m.M1),
		M2:          uint16(m.M2),
		Current:     int16(m.Current),
		Temperature: uint16(m.Temperature),
	}, cells, adc)
	return snap
}

// NewMessage implements SerializableMessage.
func (m *ModuleSnapshot) NewMessage() fx.Message { return &ModuleSnapshot{} }

// TypeID implements SerializableMessage.
func (m *ModuleSnapshot) TypeID() uint32 { return ModuleSnapshotTypeID }

// Serializable implements SerializableMessage.
func (m *ModuleSnapshot) Serializable() proto.Message { return &m.ModuleSnapshot }

// PackStatus event.
type PackStatus struct {
	pb.PackStatus
}

// NewPackStatus creates the event from evaluation outputs. Offsets of
// the host protocol are removed.
func NewPackStatus(node string, e *pylon.Ensemble, now time.Time) *PackStatus {
	return &PackStatus{
		PackStatus: pb.PackStatus{
			Node:                node,
			State:               uint32(e.Bits.Status.State),
			TotalVoltage:        uint32(e.Status.TotalVoltage),
			Current:             int32(e.Status.Current) - pylon.CurrentOffset,
			Temperature:         int32(e.Status.Temperature) - pylon.TemperatureOffset,
			Soc:                 uint32(e.Status.SOC),
			Soh:                 uint32(e.Status.SOH),
			MaxCellVoltage:      uint32(e.CellVoltage.Max),
			MinCellVoltage:      uint32(e.CellVoltage.Min),
			MaxCellIndex:        uint32(e.CellVoltage.MaxIndex),
			MinCellIndex:        uint32(e.CellVoltage.MinIndex),
			ChargeForbidden:     e.ChargeDischargeStatus.ChargeForbidden,
			DischargeForbidden:  e.ChargeDischargeStatus.DischargeForbidden,
			MaxChargeCurrent:    int32(e.Params.MaxChargeCurrent) - pylon.CurrentOffset,
			MaxDischargeCurrent: int32(e.Params.MaxDischargeCurrent) - pylon.CurrentOffset,
			Fault:               uint32(e.Bits.Fault),
			Alarm:               uint32(e.Bits.Alarm),
			Protection:          uint32(e.Bits.Protection),
			Timestamp:           now.UnixNano() / int64(time.Millisecond),
		},
	}
}

// PackState returns the state as the host protocol enum.
func (m *PackStatus) PackState() pylon.State {
	return pylon.State(m.State)
}

// NewMessage implements SerializableMessage.
func (m *PackStatus) NewMessage() fx.Message { return &PackStatus{} }

// TypeID implements SerializableMessage.
func (m *PackStatus) TypeID() uint32 { return PackStatusTypeID }

// Serializable implements SerializableMessage.
func (m *PackStatus) Serializable() proto.Message { return &m.PackStatus }
