// Package master aggregates module snapshots into pack level safety
// outputs and answers host requests with them.
package master

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/bms.go/pkg/pylon"
	"github.com/robotalks/bms.go/pkg/telemetry"
)

// ErrModuleIndex indicates an update for a module not in the pack.
var ErrModuleIndex = errors.New("invalid module index")

// Engine evaluates the pack. It is not safe for concurrent use: a
// single owner feeds updates and runs evaluations.
type Engine struct {
	cfg            Config
	chargeRules    []Rule
	dischargeRules []Rule

	modules     []telemetry.ModuleSnapshot
	lastUpdate  []time.Time
	initialized []bool
	allInit     bool
	commOK      bool

	out       pylon.Ensemble
	current   int
	processed bool
}

// NewEngine creates an Engine. Freshness of every module starts at now.
func NewEngine(cfg Config, now time.Time) *Engine {
	e := &Engine{
		cfg:            cfg,
		chargeRules:    ChargeRules(cfg.Derating, cfg.Thresholds),
		dischargeRules: DischargeRules(cfg.Derating, cfg.Thresholds),
		modules:        make([]telemetry.ModuleSnapshot, cfg.Modules),
		lastUpdate:     make([]time.Time, cfg.Modules),
		initialized:    make([]bool, cfg.Modules),
	}
	for n := range e.lastUpdate {
		e.lastUpdate[n] = now
	}
	e.out.Bits.Status.State = pylon.StateSleep
	glog.Infof("Master initialized for %d modules", cfg.Modules)
	return e
}

// Config returns the configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Update stores the snapshot of a module.
func (e *Engine) Update(index int, snap telemetry.ModuleSnapshot, now time.Time) error {
	if index < 0 || index >= len(e.modules) {
		glog.Warningf("Invalid module index %d received", index)
		return fmt.Errorf("%w: %d", ErrModuleIndex, index)
	}
	e.modules[index] = snap
	e.lastUpdate[index] = now
	if !e.initialized[index] {
		e.initialized[index] = true
		e.checkAllInitialized()
	}
	glog.V(4).Infof("Updated data for module %d", index)
	return nil
}

func (e *Engine) checkAllInitialized() {
	if e.allInit {
		return
	}
	for _, seen := range e.initialized {
		if !seen {
			return
		}
	}
	e.allInit = true
	glog.Infof("All %d modules have reported initial data", len(e.modules))
}

// AllInitialized indicates every module reported at least once.
func (e *Engine) AllInitialized() bool {
	return e.allInit
}

// CommOK is the result of the freshness check of the last evaluation.
func (e *Engine) CommOK() bool {
	return e.commOK
}

// Processed indicates at least one evaluation completed with all modules
// fresh.
func (e *Engine) Processed() bool {
	return e.processed
}

// Module returns the last snapshot of a module and when it arrived.
func (e *Engine) Module(index int) (telemetry.ModuleSnapshot, time.Time, bool) {
	if index < 0 || index >= len(e.modules) || !e.initialized[index] {
		return telemetry.ModuleSnapshot{}, time.Time{}, false
	}
	return e.modules[index], e.lastUpdate[index], true
}

// Ensemble returns the outputs of the last evaluation.
func (e *Engine) Ensemble() pylon.Ensemble {
	return e.out
}

// Current returns the averaged pack current in 0.1 A.
func (e *Engine) Current() int {
	return e.current
}

func (e *Engine) checkComm(now time.Time) bool {
	ok := true
	for n, seen := range e.initialized {
		if !seen {
			continue
		}
		if age := now.Sub(e.lastUpdate[n]); age > e.cfg.DataTimeout {
			glog.Errorf("Timeout detected for module %d! Last update %v ago", n, age)
			ok = false
		}
	}
	return ok
}

type extrema struct {
	max, min           int
	maxIndex, minIndex int
}

func newExtrema() extrema {
	return extrema{max: 0, min: math.MaxUint16}
}

func (x *extrema) track(v, index int) {
	if v < x.min {
		x.min, x.minIndex = v, index
	}
	if v > x.max {
		x.max, x.maxIndex = v, index
	}
}

func (x *extrema) encode(scale, offset int) pylon.Extrema {
	return pylon.Extrema{
		Max:      uint16(x.max*scale + offset),
		Min:      uint16(x.min*scale + offset),
		MaxIndex: uint16(x.maxIndex),
		MinIndex: uint16(x.minIndex),
	}
}

// Process runs one evaluation cycle.
func (e *Engine) Process(now time.Time) {
	e.commOK = e.checkComm(now)
	out := &e.out
	if !e.allInit || !e.commOK {
		out.Bits.Fault |= pylon.FaultInternalComm
		out.ChargeDischargeStatus = pylon.ChargeDischargeStatus{ChargeForbidden: true, DischargeForbidden: true}
		out.Bits.Status.State = pylon.StateIdle
		glog.Warning("Processing skipped: communication timeout or not all modules initialized")
		return
	}

	t := &e.cfg.Thresholds
	out.Bits.Fault = 0
	out.Bits.Alarm = 0
	out.Bits.Protection = 0
	out.FaultExtension.Faults = 0
	forbid := &out.ChargeDischargeStatus
	*forbid = pylon.ChargeDischargeStatus{}

	var totalVoltage, totalCurrent int
	cells, modV, modT := newExtrema(), newExtrema(), newExtrema()
	for i := range e.modules {
		mod := &e.modules[i]
		state := mod.State
		moduleVoltage := int(uint16(state.Voltage()))
		totalVoltage += moduleVoltage
		modV.track(int(state.M1), i*2)
		modV.track(int(state.M2), i*2+1)
		temp := int(state.Temperature)
		modT.track(temp, i)
		totalCurrent += int(state.Current)

		for j, cell := range mod.Cells {
			v := int(cell.Voltage)
			cells.track(v, i*telemetry.NumCells+j)
			if v > t.CellOverVoltProtect {
				out.Bits.Protection |= pylon.ProtectPOV | pylon.ProtectBOV
				forbid.ChargeForbidden = true
			}
			if v < t.CellUnderVoltProtect {
				out.Bits.Protection |= pylon.ProtectPUV | pylon.ProtectBUV
				forbid.DischargeForbidden = true
			}
			if v > t.CellOverVoltAlarm {
				out.Bits.Alarm |= pylon.AlarmPHV | pylon.AlarmBHV
			}
			if v < t.CellUnderVoltAlarm {
				out.Bits.Alarm |= pylon.AlarmPLV | pylon.AlarmBLV
			}
		}

		if moduleVoltage > t.ModuleOverVoltProtect {
			out.Bits.Protection |= pylon.ProtectMOV
			forbid.ChargeForbidden = true
		}
		if moduleVoltage < t.ModuleUnderVoltProtect {
			out.Bits.Protection |= pylon.ProtectMUV
			forbid.DischargeForbidden = true
		}
		if moduleVoltage > t.ModuleOverVoltAlarm {
			out.Bits.Alarm |= pylon.AlarmMHV
		}
		if moduleVoltage < t.ModuleUnderVoltAlarm {
			out.Bits.Alarm |= pylon.AlarmMLV
		}

		if temp > t.ChargeOverTempProtect {
			out.Bits.Protection |= pylon.ProtectCOT
			forbid.ChargeForbidden = true
		}
		if temp < t.ChargeUnderTempProtect {
			out.Bits.Protection |= pylon.ProtectCUT
			forbid.ChargeForbidden = true
		}
		if temp > t.DischargeOverTempProtect {
			out.Bits.Protection |= pylon.ProtectDOT
			forbid.DischargeForbidden = true
		}
		if temp < t.DischargeUnderTempProtect {
			out.Bits.Protection |= pylon.ProtectDUT
			forbid.DischargeForbidden = true
		}
		if temp > t.ChargeHighTempAlarm {
			out.Bits.Alarm |= pylon.AlarmCHT
		}
		if temp < t.ChargeLowTempAlarm {
			out.Bits.Alarm |= pylon.AlarmCLT
		}
		if temp > t.DischargeHighTempAlarm {
			out.Bits.Alarm |= pylon.AlarmDHT
		}
		if temp < t.DischargeLowTempAlarm {
			out.Bits.Alarm |= pylon.AlarmDLT
		}
	}

	// currents arrive in 0.1 mA, the host gets 0.1 A
	avgCurrent := totalCurrent / len(e.modules)
	e.current = avgCurrent / 1000

	soc := SOC(cells.min)
	out.Status = pylon.Status{
		TotalVoltage: uint16(totalVoltage),
		Current:      uint16(e.current + pylon.CurrentOffset),
		Temperature:  uint16(modT.max + pylon.TemperatureOffset),
		SOC:          soc,
		SOH:          uint8(e.cfg.SOH),
	}

	cond := Conditions{
		SOC:       int(soc),
		SOH:       e.cfg.SOH,
		MinTemp:   modT.min,
		MaxTemp:   modT.max,
		Imbalance: cells.max - cells.min,
	}
	out.Params = pylon.ChargeDischargeParams{
		ChargeCutoffVoltage:    e.cfg.ChargeCutoff(),
		DischargeCutoffVoltage: e.cfg.DischargeCutoff(),
		MaxChargeCurrent:       pylon.CurrentOffset + Derate(t.ChargeOverCurrentAlarm, e.chargeRules, cond),
		MaxDischargeCurrent:    pylon.CurrentOffset - Derate(t.DischargeOverCurrentAlarm, e.dischargeRules, cond),
	}

	out.CellVoltage.Extrema = pylon.Extrema{
		Max:      uint16(cells.max / 10),
		Min:      uint16(cells.min / 10),
		MaxIndex: uint16(cells.maxIndex),
		MinIndex: uint16(cells.minIndex),
	}
	out.CellTemperature.Extrema = modT.encode(1, pylon.TemperatureOffset)
	out.ModuleVoltage.Extrema = modV.encode(100, 0)
	out.ModuleTemperature.Extrema = modT.encode(1, pylon.TemperatureOffset)

	if e.current > t.ChargeOverCurrentProtect {
		out.Bits.Protection |= pylon.ProtectCOC
		forbid.ChargeForbidden = true
	}
	if e.current < t.DischargeOverCurrentProtect {
		out.Bits.Protection |= pylon.ProtectDOC
		forbid.DischargeForbidden = true
	}
	if e.current > t.ChargeOverCurrentAlarm {
		out.Bits.Alarm |= pylon.AlarmCOCA
	}
	if e.current < t.DischargeOverCurrentAlarm {
		out.Bits.Alarm |= pylon.AlarmDOCA
	}

	out.Bits.Status.State = DetermineState(StateInputs{
		CommOK:             e.commOK,
		CriticalFault:      out.Bits.Fault.Has(pylon.FaultOther),
		ChargeForbidden:    forbid.ChargeForbidden,
		DischargeForbidden: forbid.DischargeForbidden,
		Current:            e.current,
		IdleCurrent:        e.cfg.IdleCurrent,
	})
	out.Bits.CyclePeriod = 0
	e.processed = true
	glog.V(2).Infof("Processed: soc=%d%% state=%v charge-forbidden=%v discharge-forbidden=%v",
		soc, out.Bits.Status.State, forbid.ChargeForbidden, forbid.DischargeForbidden)
}
