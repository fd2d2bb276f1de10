package monitor

import (
	"context"
	"io/ioutil"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/robotalks/bms.go/pkg/msgs"
	"github.com/robotalks/bms.go/pkg/pylon"
	"github.com/robotalks/bms.go/pkg/telemetry"
)

func testSnapshot() *telemetry.ModuleSnapshot {
	var (
		snap  telemetry.ModuleSnapshot
		cells [telemetry.NumCells]telemetry.CellRecord
	)
	for n := range cells {
		cells[n].Voltage = 33000
	}
	cells[2].Balancing = true
	snap.SetComplete(telemetry.ModuleState{M1: 528, M2: 527, Current: 25000, Temperature: 251}, cells, [telemetry.NumADC]uint16{})
	return &snap
}

func testEnsemble() *pylon.Ensemble {
	var e pylon.Ensemble
	e.Status = pylon.Status{TotalVoltage: 2110, Current: 30025, Temperature: 1251, SOC: 80, SOH: 99}
	e.Params.MaxChargeCurrent = 30180
	e.Params.MaxDischargeCurrent = 29820
	e.CellVoltage.Max, e.CellVoltage.Min = 3350, 3280
	e.Bits.Status.State = pylon.StateCharge
	e.Bits.Alarm = pylon.AlarmBLV
	e.ChargeDischargeStatus.DischargeForbidden = true
	return &e
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	now := time.Unix(100, 0)
	m.ModuleUpdated(1, testSnapshot(), now)
	m.PackEvaluated(testEnsemble(), now)

	require.InDelta(t, 105.5, testutil.ToFloat64(m.moduleVoltage.WithLabelValues("1")), 1e-9)
	require.InDelta(t, 2.5, testutil.ToFloat64(m.moduleCurrent.WithLabelValues("1")), 1e-9)
	require.InDelta(t, 3.3, testutil.ToFloat64(m.cellVoltage.WithLabelValues("1", "31")), 1e-9)
	require.Equal(t, 1.0, testutil.ToFloat64(m.cellBalancing.WithLabelValues("1", "2")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.cellBalancing.WithLabelValues("1", "3")))

	require.InDelta(t, 211.0, testutil.ToFloat64(m.packVoltage), 1e-9)
	require.InDelta(t, 2.5, testutil.ToFloat64(m.packCurrent), 1e-9)
	require.InDelta(t, 25.1, testutil.ToFloat64(m.packTemperature), 1e-9)
	require.Equal(t, 80.0, testutil.ToFloat64(m.soc))
	require.Equal(t, float64(pylon.StateCharge), testutil.ToFloat64(m.state))
	require.Equal(t, 0.0, testutil.ToFloat64(m.forbidden.WithLabelValues("charge")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.forbidden.WithLabelValues("discharge")))
	require.InDelta(t, 18.0, testutil.ToFloat64(m.currentLimit.WithLabelValues("charge")), 1e-9)
	require.InDelta(t, 18.0, testutil.ToFloat64(m.currentLimit.WithLabelValues("discharge")), 1e-9)
	require.InDelta(t, 3.28, testutil.ToFloat64(m.cellExtrema.WithLabelValues("min")), 1e-9)
	require.Equal(t, float64(pylon.AlarmBLV), testutil.ToFloat64(m.flags.WithLabelValues("alarm")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.evaluations))
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMonitorServe(t *testing.T) {
	m := New("127.0.0.1:0", "n0")
	addr, err := m.Listen()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()
	defer func() {
		cancel()
		require.Equal(t, context.Canceled, <-errCh)
	}()

	conn, err := websocket.Dial("ws://"+addr.String()+PathStream, "", "http://localhost/")
	require.NoError(t, err)
	defer conn.Close()
	waitFor(t, func() bool { return m.Stream.Clients() == 1 })

	now := time.Unix(100, 0)
	m.ModuleUpdated(1, testSnapshot(), now)
	m.PackEvaluated(testEnsemble(), now)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var payload []byte
	require.NoError(t, websocket.Message.Receive(conn, &payload))
	msg, err := msgs.DecodeMessage(payload)
	require.NoError(t, err)
	snap, ok := msg.(*msgs.ModuleSnapshot)
	require.True(t, ok)
	require.Equal(t, "n0", snap.Node)
	require.Equal(t, *testSnapshot(), snap.Snapshot())

	require.NoError(t, websocket.Message.Receive(conn, &payload))
	msg, err = msgs.DecodeMessage(payload)
	require.NoError(t, err)
	status, ok := msg.(*msgs.PackStatus)
	require.True(t, ok)
	require.Equal(t, int32(25), status.Current)
	require.True(t, status.DischargeForbidden)

	resp, err := http.Get("http://" + addr.String() + PathMetrics)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(body), `bms_soc_percent 80`))
	require.True(t, strings.Contains(string(body), `bms_module_voltage_volts{module="1"} 105.5`))

	conn.Close()
	waitFor(t, func() bool { return m.Stream.Clients() == 0 })
}

func TestStreamDropsForSlowClients(t *testing.T) {
	s := NewStream("n0")
	s.QueueSize = 1
	ch := s.subscribe()
	e := testEnsemble()
	s.PackEvaluated(e, time.Unix(1, 0))
	s.PackEvaluated(e, time.Unix(2, 0))
	require.Equal(t, 1, s.Dropped())
	require.Len(t, ch, 1)
	s.unsubscribe(ch)
	require.Zero(t, s.Clients())
}
