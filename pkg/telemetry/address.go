package telemetry

// Addressing of telemetry records. A record id is
// BaseAddress + ModuleOffset*module + record offset + channel.
const (
	BaseAddress       uint32 = 0x11DD0000
	ModuleOffset      uint32 = 0x1000
	ModuleStateOffset uint32 = 0x000
	CellStateOffset   uint32 = 0x100
	ADCVoltageOffset  uint32 = 0x200

	DataTypeMask    uint32 = 0xF00
	DataChannelMask uint32 = 0xFF
	IDMask          uint32 = 0xF000

	BaseMask uint32 = 0xFFFF0000
)

// MaxModules is the number of modules the id space can address.
const MaxModules = int(IDMask/ModuleOffset) + 1

// RecordKind selects the record type of an id.
type RecordKind uint32

// Record kinds
const (
	KindModuleState = RecordKind(ModuleStateOffset)
	KindCell        = RecordKind(CellStateOffset)
	KindADC         = RecordKind(ADCVoltageOffset)
)

func (k RecordKind) String() string {
	switch k {
	case KindModuleState:
		return "state"
	case KindCell:
		return "cell"
	case KindADC:
		return "adc"
	}
	return "unknown"
}

// Address builds the id of a record.
func Address(module int, kind RecordKind, channel int) uint32 {
	return BaseAddress + ModuleOffset*uint32(module) + uint32(kind) + uint32(channel)
}

// IsTelemetry indicates id falls into the telemetry id space.
func IsTelemetry(id uint32) bool {
	return id&BaseMask == BaseAddress
}

// ParseAddress splits a telemetry id.
func ParseAddress(id uint32) (module int, kind RecordKind, channel int) {
	module = int((id & IDMask) / ModuleOffset)
	kind = RecordKind(id & DataTypeMask)
	channel = int(id & DataChannelMask)
	return
}
