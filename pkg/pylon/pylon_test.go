package pylon

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequest(t *testing.T) {
	b, err := Request{Type: SystemEquipmentInformation}.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, []byte{2, 0, 0, 0, 0, 0, 0, 0}, b)
	req, err := ParseRequest(b)
	require.NoError(t, err)
	require.Equal(t, SystemEquipmentInformation, req.Type)

	_, err = ParseRequest([]byte{0})
	require.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestStatusBits(t *testing.T) {
	s := StatusBits{State: StateDischarge, BalanceCharge: true}
	require.Equal(t, byte(0x12), s.Byte())
	require.Equal(t, s, ParseStatusBits(0x12))
	require.Equal(t, byte(0x0B), StatusBits{State: StateIdle, ForcedCharge: true}.Byte())
	require.Equal(t, "idle", StateIdle.String())
}

func TestMessageLayouts(t *testing.T) {
	testCases := []struct {
		name   string
		msg    Message
		id     uint32
		expect []byte
	}{
		{
			"status",
			&Status{TotalVoltage: 0x0460, Current: 30000, Temperature: 1250, SOC: 80, SOH: 99},
			0x4210,
			[]byte{0x60, 0x04, 0x30, 0x75, 0xE2, 0x04, 80, 99},
		},
		{
			"params",
			&ChargeDischargeParams{ChargeCutoffVoltage: 2304, DischargeCutoffVoltage: 1792, MaxChargeCurrent: 30180, MaxDischargeCurrent: 29820},
			0x4220,
			[]byte{0x00, 0x09, 0x00, 0x07, 0xE4, 0x75, 0x7C, 0x74},
		},
		{
			"cell voltage",
			&CellVoltageStatus{Extrema{Max: 3400, Min: 3300, MaxIndex: 33, MinIndex: 2}},
			0x4230,
			[]byte{0x48, 0x0D, 0xE4, 0x0C, 33, 0, 2, 0},
		},
		{
			"bits",
			&Bits{
				Status:      StatusBits{State: StateCharge},
				CyclePeriod: 0x0102,
				Fault:       FaultInternalComm,
				Alarm:       AlarmBLV | AlarmMHV,
				Protection:  ProtectBOV | ProtectMOV,
			},
			0x4250,
			[]byte{0x01, 0x02, 0x01, 0x04, 0x01, 0x08, 0x02, 0x08},
		},
		{
			"charge/discharge status",
			&ChargeDischargeStatus{ChargeForbidden: true, DischargeForbidden: true},
			0x4280,
			[]byte{1, 1, 0, 0, 0, 0, 0, 0},
		},
		{
			"fault extension",
			&FaultExtensionInfo{Faults: FaultExtBMIC | FaultExtSafetyFunction},
			0x4290,
			[]byte{0x12, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			"equipment info 2",
			&EquipmentInfo2{ModuleQty: 2, ModulesInSeries: 2, CellsPerModule: 32, VoltageLevel: 230, AmpereHourNumber: 100},
			0x7320,
			[]byte{2, 0, 2, 32, 230, 0, 100, 0},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.id, tc.msg.ID())
			b, err := tc.msg.MarshalBinary()
			require.NoError(t, err)
			require.Equal(t, tc.expect, b)
			decoded, err := Decode(tc.id, b)
			require.NoError(t, err)
			require.Equal(t, tc.msg, decoded)
		})
	}
}

func TestEnsembleOrder(t *testing.T) {
	var e Ensemble
	var ids []uint32
	for _, msg := range e.Messages() {
		ids = append(ids, msg.ID())
	}
	require.Equal(t, []uint32{0x4210, 0x4220, 0x4230, 0x4240, 0x4250, 0x4260, 0x4270, 0x4280, 0x4290}, ids)

	ok, err := e.Set(ModuleTemperatureStatusID, []byte{0xE2, 0x04, 0xE8, 0x03, 1, 0, 0, 0})
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, uint16(1250), e.ModuleTemperature.Max)
	require.Equal(t, uint16(1), e.ModuleTemperature.MaxIndex)

	ok, err = e.Set(EquipmentInfo1ID, make([]byte, 8))
	require.False(t, ok)
	require.NoError(t, err)

	_, err = e.Set(StatusID, []byte{1})
	require.True(t, errors.Is(err, ErrInvalidMessage))
	_, err = Decode(0x4300, make([]byte, 8))
	require.True(t, errors.Is(err, ErrInvalidMessage))
}
