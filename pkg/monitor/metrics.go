// Package monitor exposes the pack over HTTP: Prometheus metrics and a
// websocket stream of telemetry messages.
package monitor

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/bms.go/pkg/pylon"
	"github.com/robotalks/bms.go/pkg/telemetry"
)

const namespace = "bms"

// Metrics keeps gauges of the latest telemetry. It implements
// node.Observer.
type Metrics struct {
	Registry *prometheus.Registry

	moduleVoltage     *prometheus.GaugeVec
	moduleCurrent     *prometheus.GaugeVec
	moduleTemperature *prometheus.GaugeVec
	cellVoltage       *prometheus.GaugeVec
	cellBalancing     *prometheus.GaugeVec
	moduleUpdated     *prometheus.GaugeVec

	packVoltage     prometheus.Gauge
	packCurrent     prometheus.Gauge
	packTemperature prometheus.Gauge
	soc             prometheus.Gauge
	soh             prometheus.Gauge
	state           prometheus.Gauge
	forbidden       *prometheus.GaugeVec
	currentLimit    *prometheus.GaugeVec
	cellExtrema     *prometheus.GaugeVec
	flags           *prometheus.GaugeVec
	evaluations     prometheus.Counter
	lastEvaluation  prometheus.Gauge
}

func newGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
}

func newGaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

// NewMetrics creates gauges in a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		moduleVoltage:     newGaugeVec("module_voltage_volts", "Module voltage (V)", "module"),
		moduleCurrent:     newGaugeVec("module_current_amperes", "Module current (A)", "module"),
		moduleTemperature: newGaugeVec("module_temperature_celsius", "Module temperature (°C)", "module"),
		cellVoltage:       newGaugeVec("cell_voltage_volts", "Cell voltage (V)", "module", "cell"),
		cellBalancing:     newGaugeVec("cell_balancing", "Cell is balancing", "module", "cell"),
		moduleUpdated:     newGaugeVec("module_updated_timestamp_seconds", "Time of the latest module snapshot", "module"),

		packVoltage:     newGauge("pack_voltage_volts", "Pack voltage (V)"),
		packCurrent:     newGauge("pack_current_amperes", "Pack current (A), positive when charging"),
		packTemperature: newGauge("pack_temperature_celsius", "Highest module temperature (°C)"),
		soc:             newGauge("soc_percent", "State of charge (%)"),
		soh:             newGauge("soh_percent", "State of health (%)"),
		state:           newGauge("state", "0 sleep, 1 charge, 2 discharge, 3 idle"),
		forbidden:       newGaugeVec("forbidden", "Charge or discharge forbidden", "direction"),
		currentLimit:    newGaugeVec("current_limit_amperes", "Allowed current (A)", "direction"),
		cellExtrema:     newGaugeVec("cell_voltage_extrema_volts", "Highest and lowest cell voltage (V)", "extremum"),
		flags:           newGaugeVec("flags", "Fault, alarm and protection bit fields", "kind"),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Number of pack evaluations",
		}),
		lastEvaluation: newGauge("evaluated_timestamp_seconds", "Time of the latest pack evaluation"),
	}
	m.Registry.MustRegister(
		m.moduleVoltage, m.moduleCurrent, m.moduleTemperature,
		m.cellVoltage, m.cellBalancing, m.moduleUpdated,
		m.packVoltage, m.packCurrent, m.packTemperature,
		m.soc, m.soh, m.state, m.forbidden, m.currentLimit,
		m.cellExtrema, m.flags, m.evaluations, m.lastEvaluation,
	)
	return m
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ModuleUpdated implements node.Observer.
func (m *Metrics) ModuleUpdated(module int, snap *telemetry.ModuleSnapshot, now time.Time) {
	label := strconv.Itoa(module)
	m.moduleVoltage.WithLabelValues(label).Set(float64(snap.State.Voltage()) / 10)
	m.moduleCurrent.WithLabelValues(label).Set(float64(snap.State.Current) / 10000)
	m.moduleTemperature.WithLabelValues(label).Set(float64(snap.State.Temperature) / 10)
	for n, cell := range snap.Cells {
		cellLabel := strconv.Itoa(n)
		m.cellVoltage.WithLabelValues(label, cellLabel).Set(float64(cell.Voltage) / 10000)
		m.cellBalancing.WithLabelValues(label, cellLabel).Set(boolGauge(cell.Balancing))
	}
	m.moduleUpdated.WithLabelValues(label).Set(float64(now.UnixNano()) / 1e9)
}

// PackEvaluated implements node.Observer.
func (m *Metrics) PackEvaluated(e *pylon.Ensemble, now time.Time) {
	m.packVoltage.Set(float64(e.Status.TotalVoltage) / 10)
	m.packCurrent.Set(float64(int(e.Status.Current)-pylon.CurrentOffset) / 10)
	m.packTemperature.Set(float64(int(e.Status.Temperature)-pylon.TemperatureOffset) / 10)
	m.soc.Set(float64(e.Status.SOC))
	m.soh.Set(float64(e.Status.SOH))
	m.state.Set(float64(e.Bits.Status.State))
	m.forbidden.WithLabelValues("charge").Set(boolGauge(e.ChargeDischargeStatus.ChargeForbidden))
	m.forbidden.WithLabelValues("discharge").Set(boolGauge(e.ChargeDischargeStatus.DischargeForbidden))
	m.currentLimit.WithLabelValues("charge").Set(float64(int(e.Params.MaxChargeCurrent)-pylon.CurrentOffset) / 10)
	m.currentLimit.WithLabelValues("discharge").Set(float64(pylon.CurrentOffset-int(e.Params.MaxDischargeCurrent)) / 10)
	m.cellExtrema.WithLabelValues("max").Set(float64(e.CellVoltage.Max) / 1000)
	m.cellExtrema.WithLabelValues("min").Set(float64(e.CellVoltage.Min) / 1000)
	m.flags.WithLabelValues("fault").Set(float64(e.Bits.Fault))
	m.flags.WithLabelValues("alarm").Set(float64(e.Bits.Alarm))
	m.flags.WithLabelValues("protection").Set(float64(e.Bits.Protection))
	m.evaluations.Inc()
	m.lastEvaluation.Set(float64(now.UnixNano()) / 1e9)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
