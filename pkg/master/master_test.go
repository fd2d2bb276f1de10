package master

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/bms.go/pkg/pylon"
	"github.com/robotalks/bms.go/pkg/telemetry"
)

func snapshot(m1, m2 uint16, current int16, temp uint16, cell uint16) telemetry.ModuleSnapshot {
	snap := telemetry.ModuleSnapshot{
		State: telemetry.ModuleState{M1: m1, M2: m2, Current: current, Temperature: temp},
	}
	for n := range snap.Cells {
		snap.Cells[n].Voltage = cell
	}
	return snap
}

func testPack() (telemetry.ModuleSnapshot, telemetry.ModuleSnapshot) {
	m0 := snapshot(530, 530, 20000, 250, 33000)
	m0.Cells[5].Voltage = 33500
	m1 := snapshot(520, 525, 30000, 300, 33000)
	m1.Cells[7].Voltage = 32800
	return m0, m1
}

func newTestEngine(t *testing.T, now time.Time) *Engine {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	e := NewEngine(cfg, now)
	m0, m1 := testPack()
	require.NoError(t, e.Update(0, m0, now))
	require.NoError(t, e.Update(1, m1, now))
	return e
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, uint16(2304), cfg.ChargeCutoff())
	require.Equal(t, uint16(1792), cfg.DischargeCutoff())

	cfg.Thresholds.CellOverVoltAlarm = 37000
	require.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
	cfg = DefaultConfig()
	cfg.Derating.TempFactor = 1.5
	require.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
	cfg = DefaultConfig()
	cfg.Modules = 0
	require.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
}

func TestSOC(t *testing.T) {
	testCases := []struct {
		voltage int
		soc     uint8
	}{
		{0, 0},
		{24000, 0},
		{25000, 0},
		{26500, 2},
		{28000, 5},
		{32800, 64},
		{33000, 80},
		{36000, 100},
		{36500, 100},
		{40000, 100},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.soc, SOC(tc.voltage), "voltage %d", tc.voltage)
	}
	last := SOC(20000)
	for v := 20000; v <= 40000; v += 10 {
		soc := SOC(v)
		require.True(t, soc >= last, "soc decreased at %d", v)
		last = soc
	}
}

func TestDerating(t *testing.T) {
	d, th := DefaultDerating(), DefaultThresholds()
	charge, discharge := ChargeRules(d, th), DischargeRules(d, th)
	normal := Conditions{SOC: 50, SOH: 99, MinTemp: 250, MaxTemp: 250}

	testCases := []struct {
		name      string
		cond      func(c *Conditions)
		charge    uint16
		discharge uint16
	}{
		{"normal", func(c *Conditions) {}, 180, 180},
		{"cold", func(c *Conditions) { c.MinTemp = 40 }, 90, 90},
		{"hot for charge only", func(c *Conditions) { c.MaxTemp = 500 }, 90, 180},
		{"cold and near full", func(c *Conditions) { c.MinTemp = 40; c.SOC = 96 }, 36, 90},
		{"high soc", func(c *Conditions) { c.SOC = 90 }, 90, 180},
		{"full", func(c *Conditions) { c.SOC = 100 }, 0, 180},
		{"low soc", func(c *Conditions) { c.SOC = 10 }, 180, 90},
		{"near empty", func(c *Conditions) { c.SOC = 5 }, 180, 36},
		{"empty", func(c *Conditions) { c.SOC = 0 }, 180, 0},
		{"imbalance", func(c *Conditions) { c.Imbalance = 1001 }, 90, 90},
		{"imbalance at limit", func(c *Conditions) { c.Imbalance = 1000 }, 180, 180},
		{"soh 85", func(c *Conditions) { c.SOH = 85 }, 162, 162},
		{"soh 75", func(c *Conditions) { c.SOH = 75 }, 144, 144},
		{"soh 65", func(c *Conditions) { c.SOH = 65 }, 126, 126},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := normal
			tc.cond(&c)
			require.Equal(t, tc.charge, Derate(th.ChargeOverCurrentAlarm, charge, c))
			require.Equal(t, tc.discharge, Derate(th.DischargeOverCurrentAlarm, discharge, c))
		})
	}

	// the minimum applies, not the product
	c := normal
	c.MaxTemp, c.SOC = 500, 96
	require.Equal(t, d.SOCNearFullFactor, Factor(charge, c))
}

func TestDetermineState(t *testing.T) {
	ok := StateInputs{CommOK: true, IdleCurrent: 2}
	testCases := []struct {
		name   string
		in     func(in *StateInputs)
		expect pylon.State
	}{
		{"no current", func(in *StateInputs) {}, pylon.StateIdle},
		{"charge threshold", func(in *StateInputs) { in.Current = 2 }, pylon.StateIdle},
		{"charging", func(in *StateInputs) { in.Current = 3 }, pylon.StateCharge},
		{"discharge threshold", func(in *StateInputs) { in.Current = -2 }, pylon.StateIdle},
		{"discharging", func(in *StateInputs) { in.Current = -3 }, pylon.StateDischarge},
		{"charging forbidden", func(in *StateInputs) { in.Current = 3; in.ChargeForbidden = true }, pylon.StateIdle},
		{"discharging forbidden", func(in *StateInputs) { in.Current = -3; in.DischargeForbidden = true }, pylon.StateIdle},
		{"charging while discharge forbidden", func(in *StateInputs) { in.Current = 3; in.DischargeForbidden = true }, pylon.StateCharge},
		{"both forbidden", func(in *StateInputs) { in.Current = 3; in.ChargeForbidden = true; in.DischargeForbidden = true }, pylon.StateIdle},
		{"comm lost", func(in *StateInputs) { in.Current = 3; in.CommOK = false }, pylon.StateIdle},
		{"critical fault", func(in *StateInputs) { in.Current = -3; in.CriticalFault = true }, pylon.StateIdle},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := ok
			tc.in(&in)
			require.Equal(t, tc.expect, DetermineState(in))
		})
	}
}

func TestEngineProcess(t *testing.T) {
	now := time.Unix(1000, 0)
	e := newTestEngine(t, now)
	require.Equal(t, pylon.StateSleep, e.Ensemble().Bits.Status.State)
	require.True(t, e.AllInitialized())

	e.Process(now.Add(time.Second))
	require.True(t, e.CommOK())
	out := e.Ensemble()
	require.Equal(t, pylon.Status{TotalVoltage: 2105, Current: 30025, Temperature: 1300, SOC: 64, SOH: 99}, out.Status)
	require.Equal(t, pylon.ChargeDischargeParams{
		ChargeCutoffVoltage:    2304,
		DischargeCutoffVoltage: 1792,
		MaxChargeCurrent:       30180,
		MaxDischargeCurrent:    29820,
	}, out.Params)
	require.Equal(t, pylon.Extrema{Max: 3350, Min: 3280, MaxIndex: 5, MinIndex: 39}, out.CellVoltage.Extrema)
	require.Equal(t, pylon.Extrema{Max: 1300, Min: 1250, MaxIndex: 1, MinIndex: 0}, out.CellTemperature.Extrema)
	require.Equal(t, pylon.Extrema{Max: 53000, Min: 52000, MaxIndex: 0, MinIndex: 2}, out.ModuleVoltage.Extrema)
	require.Equal(t, out.CellTemperature.Extrema, out.ModuleTemperature.Extrema)
	require.Equal(t, pylon.StateCharge, out.Bits.Status.State)
	require.Zero(t, out.Bits.Fault)
	require.Zero(t, out.Bits.Alarm)
	require.Zero(t, out.Bits.Protection)
	require.Equal(t, pylon.ChargeDischargeStatus{}, out.ChargeDischargeStatus)
	require.Equal(t, 25, e.Current())
}

func TestEngineProtections(t *testing.T) {
	now := time.Unix(1000, 0)
	e := newTestEngine(t, now)
	m0, _ := testPack()
	m0.State.Temperature = 510
	m0.Cells[0].Voltage = 36600
	require.NoError(t, e.Update(0, m0, now))
	e.Process(now)

	out := e.Ensemble()
	require.True(t, out.Bits.Protection.Has(pylon.ProtectCOT))
	require.True(t, out.Bits.Protection.Has(pylon.ProtectPOV|pylon.ProtectBOV))
	require.False(t, out.Bits.Protection.Has(pylon.ProtectDOT))
	require.True(t, out.Bits.Alarm.Has(pylon.AlarmCHT))
	require.True(t, out.Bits.Alarm.Has(pylon.AlarmPHV))
	require.True(t, out.ChargeDischargeStatus.ChargeForbidden)
	require.False(t, out.ChargeDischargeStatus.DischargeForbidden)
	// still charging at 2.5 A while forbidden
	require.Equal(t, pylon.StateIdle, out.Bits.Status.State)

	// conditions clear on the next cycle
	m0, _ = testPack()
	require.NoError(t, e.Update(0, m0, now))
	e.Process(now)
	out = e.Ensemble()
	require.Zero(t, out.Bits.Protection)
	require.Equal(t, pylon.StateCharge, out.Bits.Status.State)
}

func TestEngineUnderVoltage(t *testing.T) {
	now := time.Unix(1000, 0)
	e := NewEngine(DefaultConfig(), now)
	m0 := snapshot(390, 390, -30000, 250, 24000)
	m1 := snapshot(400, 400, -30000, 250, 26000)
	require.NoError(t, e.Update(0, m0, now))
	require.NoError(t, e.Update(1, m1, now))
	e.Process(now)

	out := e.Ensemble()
	require.True(t, out.Bits.Protection.Has(pylon.ProtectPUV|pylon.ProtectBUV))
	require.True(t, out.Bits.Protection.Has(pylon.ProtectMUV))
	require.True(t, out.Bits.Alarm.Has(pylon.AlarmMLV|pylon.AlarmPLV))
	require.True(t, out.ChargeDischargeStatus.DischargeForbidden)
	require.False(t, out.ChargeDischargeStatus.ChargeForbidden)
	require.Equal(t, uint8(0), out.Status.SOC)
	require.Equal(t, uint16(29970), out.Status.Current)
	require.Equal(t, uint16(pylon.CurrentOffset), out.Params.MaxDischargeCurrent)
	require.Equal(t, pylon.StateIdle, out.Bits.Status.State)
}

func TestEngineCommTimeout(t *testing.T) {
	now := time.Unix(1000, 0)
	e := newTestEngine(t, now)

	e.Process(now.Add(5000 * time.Millisecond))
	require.True(t, e.CommOK())
	require.Equal(t, pylon.StateCharge, e.Ensemble().Bits.Status.State)

	e.Process(now.Add(5001 * time.Millisecond))
	require.False(t, e.CommOK())
	out := e.Ensemble()
	require.True(t, out.Bits.Fault.Has(pylon.FaultInternalComm))
	require.Equal(t, pylon.ChargeDischargeStatus{ChargeForbidden: true, DischargeForbidden: true}, out.ChargeDischargeStatus)
	require.Equal(t, pylon.StateIdle, out.Bits.Status.State)

	// one fresh module is not enough
	m0, m1 := testPack()
	later := now.Add(6 * time.Second)
	require.NoError(t, e.Update(0, m0, later))
	e.Process(later)
	require.False(t, e.CommOK())

	require.NoError(t, e.Update(1, m1, later))
	e.Process(later)
	require.True(t, e.CommOK())
	require.False(t, e.Ensemble().Bits.Fault.Has(pylon.FaultInternalComm))
}

func TestEngineNotInitialized(t *testing.T) {
	now := time.Unix(1000, 0)
	e := NewEngine(DefaultConfig(), now)
	m0, _ := testPack()
	require.NoError(t, e.Update(0, m0, now))
	require.False(t, e.AllInitialized())
	e.Process(now)
	out := e.Ensemble()
	require.Equal(t, pylon.StateIdle, out.Bits.Status.State)
	require.True(t, out.ChargeDischargeStatus.ChargeForbidden)
	require.True(t, out.ChargeDischargeStatus.DischargeForbidden)
	require.False(t, e.Processed())

	require.True(t, errors.Is(e.Update(2, m0, now), ErrModuleIndex))
	require.True(t, errors.Is(e.Update(-1, m0, now), ErrModuleIndex))
	_, _, ok := e.Module(1)
	require.False(t, ok)
}

type fakeSender struct {
	ids  []uint32
	fail uint32
}

func (s *fakeSender) Send(ctx context.Context, id uint32, payload []byte) error {
	s.ids = append(s.ids, id)
	if len(payload) != pylon.MessageSize {
		return errors.New("bad size")
	}
	if id == s.fail {
		return errors.New("bus off")
	}
	return nil
}

var ensembleIDs = []uint32{0x4210, 0x4220, 0x4230, 0x4240, 0x4250, 0x4260, 0x4270, 0x4280, 0x4290}

func TestHostHandler(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	sender := &fakeSender{}
	h := NewHostHandler(newTestEngine(t, now), sender, 0)

	require.True(t, h.Enqueue(pylon.Request{Type: pylon.EnsembleInformation}))
	require.True(t, h.Enqueue(pylon.Request{Type: pylon.SystemEquipmentInformation}))
	require.True(t, h.Enqueue(pylon.Request{Type: pylon.RequestType(7)}))
	require.True(t, h.Enqueue(pylon.Request{Type: pylon.EnsembleInformation}))
	require.False(t, h.Enqueue(pylon.Request{Type: pylon.EnsembleInformation}))
	require.Equal(t, DefaultRequestQueueSize, h.Pending())

	require.NoError(t, h.Drain(ctx, now))
	require.Zero(t, h.Pending())
	require.Equal(t, append(append([]uint32{}, ensembleIDs...), ensembleIDs...), sender.ids)
	require.Equal(t, pylon.StateCharge, h.Engine.Ensemble().Bits.Status.State)
}

func TestHostHandlerSkipsUninitialized(t *testing.T) {
	now := time.Unix(1000, 0)
	sender := &fakeSender{}
	h := NewHostHandler(NewEngine(DefaultConfig(), now), sender, 1)
	require.NoError(t, h.Handle(context.Background(), pylon.Request{Type: pylon.EnsembleInformation}, now))
	require.Empty(t, sender.ids)
}

func TestHostHandlerSendFailure(t *testing.T) {
	now := time.Unix(1000, 0)
	sender := &fakeSender{fail: pylon.CellVoltageStatusID}
	h := NewHostHandler(newTestEngine(t, now), sender, 1)
	err := h.Handle(context.Background(), pylon.Request{Type: pylon.EnsembleInformation}, now)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bus off")
	require.Equal(t, ensembleIDs, sender.ids)
}
