// Package bmsv1 holds the wire messages of bms.proto. The types carry
// protobuf struct tags and are encoded by github.com/golang/protobuf
// through reflection.
package bmsv1

import (
	"github.com/golang/protobuf/proto"
)

// Typed wraps a message with its type id.
type Typed struct {
	TypeId  uint32 `protobuf:"varint,1,opt,name=type_id,json=typeId,proto3" json:"type_id,omitempty"`
	Message []byte `protobuf:"bytes,2,opt,name=message,proto3" json:"message,omitempty"`
}

func (m *Typed) Reset()         { *m = Typed{} }
func (m *Typed) String() string { return proto.CompactTextString(m) }
func (*Typed) ProtoMessage()    {}

// ModuleSnapshot is the complete telemetry of one module.
type ModuleSnapshot struct {
	Node         string   `protobuf:"bytes,1,opt,name=node,proto3" json:"node,omitempty"`
	Module       uint32   `protobuf:"varint,2,opt,name=module,proto3" json:"module,omitempty"`
	M1           uint32   `protobuf:"varint,3,opt,name=m1,proto3" json:"m1,omitempty"`
	M2           uint32   `protobuf:"varint,4,opt,name=m2,proto3" json:"m2,omitempty"`
	Current      int32    `protobuf:"zigzag32,5,opt,name=current,proto3" json:"current,omitempty"`
	Temperature  uint32   `protobuf:"varint,6,opt,name=temperature,proto3" json:"temperature,omitempty"`
	CellVoltages []uint32 `protobuf:"varint,7,rep,packed,name=cell_voltages,json=cellVoltages,proto3" json:"cell_voltages,omitempty"`
	Balancing    uint32   `protobuf:"varint,8,opt,name=balancing,proto3" json:"balancing,omitempty"`
	Adc          []uint32 `protobuf:"varint,9,rep,packed,name=adc,proto3" json:"adc,omitempty"`
	Timestamp    int64    `protobuf:"varint,10,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

func (m *ModuleSnapshot) Reset()         { *m = ModuleSnapshot{} }
func (m *ModuleSnapshot) String() string { return proto.CompactTextString(m) }
func (*ModuleSnapshot) ProtoMessage()    {}

// PackStatus is the result of one pack evaluation.
type PackStatus struct {
	Node                string `protobuf:"bytes,1,opt,name=node,proto3" json:"node,omitempty"`
	State               uint32 `protobuf:"varint,2,opt,name=state,proto3" json:"state,omitempty"`
	TotalVoltage        uint32 `protobuf:"varint,3,opt,name=total_voltage,json=totalVoltage,proto3" json:"total_voltage,omitempty"`
	Current             int32  `protobuf:"zigzag32,4,opt,name=current,proto3" json:"current,omitempty"`
	Temperature         int32  `protobuf:"zigzag32,5,opt,name=temperature,proto3" json:"temperature,omitempty"`
	Soc                 uint32 `protobuf:"varint,6,opt,name=soc,proto3" json:"soc,omitempty"`
	Soh                 uint32 `protobuf:"varint,7,opt,name=soh,proto3" json:"soh,omitempty"`
	MaxCellVoltage      uint32 `protobuf:"varint,8,opt,name=max_cell_voltage,json=maxCellVoltage,proto3" json:"max_cell_voltage,omitempty"`
	MinCellVoltage      uint32 `protobuf:"varint,9,opt,name=min_cell_voltage,json=minCellVoltage,proto3" json:"min_cell_voltage,omitempty"`
	MaxCellIndex        uint32 `protobuf:"varint,10,opt,name=max_cell_index,json=maxCellIndex,proto3" json:"max_cell_index,omitempty"`
	MinCellIndex        uint32 `protobuf:"varint,11,opt,name=min_cell_index,json=minCellIndex,proto3" json:"min_cell_index,omitempty"`
	ChargeForbidden     bool   `protobuf:"varint,12,opt,name=charge_forbidden,json=chargeForbidden,proto3" json:"charge_forbidden,omitempty"`
	DischargeForbidden  bool   `protobuf:"varint,13,opt,name=discharge_forbidden,json=dischargeForbidden,proto3" json:"discharge_forbidden,omitempty"`
	MaxChargeCurrent    int32  `protobuf:"zigzag32,14,opt,name=max_charge_current,json=maxChargeCurrent,proto3" json:"max_charge_current,omitempty"`
	MaxDischargeCurrent int32  `protobuf:"zigzag32,15,opt,name=max_discharge_current,json=maxDischargeCurrent,proto3" json:"max_discharge_current,omitempty"`
	Fault               uint32 `protobuf:"varint,16,opt,name=fault,proto3" json:"fault,omitempty"`
	Alarm               uint32 `protobuf:"varint,17,opt,name=alarm,proto3" json:"alarm,omitempty"`
	Protection          uint32 `protobuf:"varint,18,opt,name=protection,proto3" json:"protection,omitempty"`
	Timestamp           int64  `protobuf:"varint,19,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

func (m *PackStatus) Reset()         { *m = PackStatus{} }
func (m *PackStatus) String() string { return proto.CompactTextString(m) }
func (*PackStatus) ProtoMessage()    {}
