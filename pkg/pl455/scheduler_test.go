package pl455

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/bms.go/pkg/telemetry"
)

type chipReadings struct {
	cells  [ChipCells]uint16
	aux    [ChipAux]uint16
	module uint16
}

// voltageBlock encodes readings the way a chip answers a voltage request:
// cells and aux channels highest first, big endian.
func (r *chipReadings) voltageBlock() []byte {
	data := make([]byte, 0, 50)
	for i := ChipCells - 1; i >= 0; i-- {
		data = append(data, byte(r.cells[i]>>8), byte(r.cells[i]))
	}
	for i := ChipAux - 1; i >= 0; i-- {
		data = append(data, byte(r.aux[i]>>8), byte(r.aux[i]))
	}
	data = append(data, byte(r.module>>8), byte(r.module))
	return response(data...)
}

func testReadings() []*chipReadings {
	chips := []*chipReadings{{}, {}}
	for _, chip := range chips {
		for i := range chip.cells {
			chip.cells[i] = 40000
		}
		chip.aux[ChipAux-1] = 33000
		chip.module = 32768
	}
	chips[0].cells[3] = 42000
	// exactly min + tolerance
	chips[0].cells[9] = 40016
	chips[0].cells[10] = 40017
	chips[1].cells[0] = 39990
	// disconnected
	chips[1].cells[15] = 100
	chips[0].aux[2] = 26214
	return chips
}

func voltageResponder(chips []*chipReadings) func(Command, []byte) []byte {
	return func(cmd Command, frame []byte) []byte {
		if cmd.Scope == ScopeSingle && frame[2] == RegCommand && int(frame[1]) < len(chips) {
			return chips[frame[1]].voltageBlock()
		}
		return nil
	}
}

func TestSchedulerConfig(t *testing.T) {
	conf := DefaultSchedulerConfig()
	require.NoError(t, conf.Validate())
	require.Equal(t, 10, conf.Steps())
	require.Equal(t, 50*time.Millisecond, conf.StepPeriod())
	conf.DutyCycle = 100
	require.Error(t, conf.Validate())
	conf.DutyCycle = 50
	require.Equal(t, 2, conf.Steps())
}

func TestSchedulerCycle(t *testing.T) {
	c := newFakeChain(Addr8)
	c.reply = voltageResponder(testReadings())
	s := NewScheduler(c.link, 2, DefaultSchedulerConfig())
	now := time.Unix(0, 0)

	require.NoError(t, s.Step(now))
	require.Equal(t, [][]byte{{0xF2, 0x14, 0x00, 0x00, 0x72, 0xBC}}, c.take())

	// gated by the step period
	require.NoError(t, s.Step(now.Add(50*time.Millisecond)))
	require.Empty(t, c.take())

	now = now.Add(51 * time.Millisecond)
	require.NoError(t, s.Step(now))
	require.Equal(t, [][]byte{{0x81, 0x00, 0x02, 0x00, 0x29, 0x5C}}, c.take())
	now = now.Add(time.Millisecond)
	require.NoError(t, s.Step(now))
	require.Equal(t, [][]byte{mustRead(t, 1, RegCommand)}, c.take())
	now = now.Add(time.Millisecond)
	require.NoError(t, s.Step(now))
	require.Equal(t, [][]byte{
		mustWrite(t, ScopeSingle, 0, RegBalanceEnable, 0x08, 0x04),
		mustWrite(t, ScopeSingle, 1, RegBalanceEnable, 0x00, 0x00),
	}, c.take())
	require.Equal(t, 1, s.Cycles())

	require.Equal(t, uint16(32043), s.CellVoltage(0, 3))
	require.Equal(t, uint16(30518), s.CellVoltage(1, 1))
	require.Equal(t, uint16(32043), s.MaxCellVoltage())
	require.Equal(t, uint16(30510), s.MinCellVoltage())
	require.Equal(t, uint16(1533), s.DiffCellVoltage())
	require.Equal(t, uint16(6250), s.ModuleVoltage(0))
	require.Equal(t, uint16(25177), s.AuxVoltage(0, 7))
	require.InDelta(t, 17.0, s.Temperature(0, 2), 0.01)
	require.True(t, s.Balancing(0, 3))
	require.False(t, s.Balancing(0, 9))
	require.True(t, s.Balancing(0, 10))
	require.False(t, s.Balancing(1, 15))

	// remaining steps keep balancing on, then the cycle restarts
	for i := 2; i < 10; i++ {
		now = now.Add(51 * time.Millisecond)
		require.NoError(t, s.Step(now))
		require.Len(t, c.take(), 2)
	}
	now = now.Add(51 * time.Millisecond)
	require.NoError(t, s.Step(now))
	require.Equal(t, [][]byte{mustWrite(t, ScopeBroadcast, 0, RegBalanceEnable, 0, 0)}, c.take())
}

func TestSchedulerBalanceFloor(t *testing.T) {
	c := newFakeChain(Addr8)
	c.reply = voltageResponder(testReadings())
	conf := DefaultSchedulerConfig()
	conf.BalanceWhileCharge = false
	conf.MinBalanceVolt = 41000
	s := NewScheduler(c.link, 2, conf)
	now := time.Unix(0, 0)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Step(now))
		now = now.Add(51 * time.Millisecond)
	}
	frames := c.take()
	require.Equal(t, mustWrite(t, ScopeSingle, 0, RegBalanceEnable, 0x08, 0x00), frames[len(frames)-2])
	require.Equal(t, []byte{0x08, 0x00}, s.BalanceBitmap(0))
}

func TestSchedulerCommTimeout(t *testing.T) {
	c := newFakeChain(Addr8)
	s := NewScheduler(c.link, 2, DefaultSchedulerConfig())
	now := time.Unix(0, 0)
	require.NoError(t, s.Step(now))
	now = now.Add(51 * time.Millisecond)
	require.NoError(t, s.Step(now))
	require.True(t, c.link.Waiting())
	c.take()

	require.NoError(t, s.Step(now.Add(time.Second)))
	require.True(t, c.link.Waiting())
	now = now.Add(time.Second + time.Millisecond)
	require.NoError(t, s.Step(now))
	require.False(t, c.link.Waiting())
	require.Empty(t, c.take())

	// restarts by disabling balancing once the step period elapsed
	now = now.Add(51 * time.Millisecond)
	require.NoError(t, s.Step(now))
	require.Equal(t, [][]byte{mustWrite(t, ScopeBroadcast, 0, RegBalanceEnable, 0, 0)}, c.take())
}

func TestSchedulerShortResponse(t *testing.T) {
	c := newFakeChain(Addr8)
	c.reply = func(Command, []byte) []byte { return response(1, 2, 3, 4) }
	s := NewScheduler(c.link, 1, DefaultSchedulerConfig())
	now := time.Unix(0, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Step(now))
		now = now.Add(51 * time.Millisecond)
	}
	require.Equal(t, 1, s.Cycles())
	require.Equal(t, uint16(0), s.CellVoltage(0, 0))
	require.False(t, c.link.Waiting())
}

func TestSchedulerFill(t *testing.T) {
	c := newFakeChain(Addr8)
	c.reply = voltageResponder(testReadings())
	s := NewScheduler(c.link, 2, DefaultSchedulerConfig())
	now := time.Unix(0, 0)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Step(now))
		now = now.Add(51 * time.Millisecond)
	}

	var snap telemetry.ModuleSnapshot
	s.Fill(&snap)
	require.True(t, snap.IsComplete())
	require.Equal(t, telemetry.CellRecord{Voltage: 32043, Balancing: true}, snap.Cells[3])
	require.Equal(t, uint16(30510), snap.Cells[16].Voltage)
	require.Equal(t, uint16(625), snap.State.M1)
	require.Equal(t, uint16(625), snap.State.M2)
	require.Equal(t, int16(3186), snap.State.Current)
	require.Equal(t, uint16(250), snap.State.Temperature)
	require.Equal(t, uint16(25177), snap.ADC[7])
	require.Equal(t, uint16(25177), snap.ADC[15])

	s.Config.ThermistorChannel = 2
	s.Fill(&snap)
	require.Equal(t, uint16(170), snap.State.Temperature)
}

func TestConversions(t *testing.T) {
	require.Equal(t, uint16(0), AdcToVolt(0))
	require.Equal(t, uint16(50000), AdcToVolt(65535))
	require.Equal(t, uint16(12500), AdcToModuleVolt(65535))
	require.InDelta(t, 12.06, AdcToTemp(30000), 0.01)
}
