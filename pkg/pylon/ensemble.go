package pylon

import "fmt"

// Ensemble is the answer to an EnsembleInformation request.
type Ensemble struct {
	Status                Status
	Params                ChargeDischargeParams
	CellVoltage           CellVoltageStatus
	CellTemperature       CellTemperatureStatus
	Bits                  Bits
	ModuleVoltage         ModuleVoltageStatus
	ModuleTemperature     ModuleTemperatureStatus
	ChargeDischargeStatus ChargeDischargeStatus
	FaultExtension        FaultExtensionInfo
}

// Messages lists the messages in transmission order.
func (e *Ensemble) Messages() []Message {
	return []Message{
		&e.Status,
		&e.Params,
		&e.CellVoltage,
		&e.CellTemperature,
		&e.Bits,
		&e.ModuleVoltage,
		&e.ModuleTemperature,
		&e.ChargeDischargeStatus,
		&e.FaultExtension,
	}
}

// Set decodes a message into the matching field. It returns false for
// ids not part of the ensemble.
func (e *Ensemble) Set(id uint32, payload []byte) (bool, error) {
	for _, msg := range e.Messages() {
		if msg.ID() == id {
			return true, msg.UnmarshalBinary(payload)
		}
	}
	return false, nil
}

// NewMessage creates an empty message for id.
func NewMessage(id uint32) (Message, error) {
	switch id {
	case StatusID:
		return &Status{}, nil
	case ChargeDischargeParamsID:
		return &ChargeDischargeParams{}, nil
	case CellVoltageStatusID:
		return &CellVoltageStatus{}, nil
	case CellTemperatureStatusID:
		return &CellTemperatureStatus{}, nil
	case BitsID:
		return &Bits{}, nil
	case ModuleVoltageStatusID:
		return &ModuleVoltageStatus{}, nil
	case ModuleTemperatureStatusID:
		return &ModuleTemperatureStatus{}, nil
	case ChargeDischargeStatusID:
		return &ChargeDischargeStatus{}, nil
	case FaultExtensionInfoID:
		return &FaultExtensionInfo{}, nil
	case EquipmentInfo1ID:
		return &EquipmentInfo1{}, nil
	case EquipmentInfo2ID:
		return &EquipmentInfo2{}, nil
	}
	return nil, fmt.Errorf("%w: unknown id %04x", ErrInvalidMessage, id)
}

// Decode decodes any response message.
func Decode(id uint32, payload []byte) (Message, error) {
	msg, err := NewMessage(id)
	if err != nil {
		return nil, err
	}
	if err = msg.UnmarshalBinary(payload); err != nil {
		return nil, err
	}
	return msg, nil
}
