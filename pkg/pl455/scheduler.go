package pl455

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/bms.go/pkg/telemetry"
)

// Per chip channels
const (
	ChipCells = 16
	ChipAux   = 8
)

// voltage block response: length byte, 16 cells, 8 aux, module, CRC
const voltageFrameSize = 1 + 2*ChipCells + 2*ChipAux + 2 + 2

// SchedulerConfig configures measurement and balancing.
// Voltage thresholds are raw ADC readings.
type SchedulerConfig struct {
	// CyclePeriod is the time between voltage readings.
	CyclePeriod time.Duration `yaml:"cycle_period"`
	// DutyCycle is the approximate share of time balancing is on, in percent.
	DutyCycle int `yaml:"duty_cycle"`
	// CellIgnore excludes disconnected cells reading below it from min/max.
	CellIgnore uint16 `yaml:"cell_ignore"`
	// Tolerance above the lowest cell before a cell is balanced.
	Tolerance uint16 `yaml:"tolerance"`
	// MinBalanceVolt is the reading below which cells are not balanced.
	MinBalanceVolt uint16 `yaml:"min_balance_volt"`
	// BalanceWhileCharge balances regardless of MinBalanceVolt.
	BalanceWhileCharge bool `yaml:"balance_while_charge"`
	// CommTimeout abandons a voltage request without response.
	CommTimeout time.Duration `yaml:"comm_timeout"`
	// ThermistorChannel is the aux channel of the first chip wired to an
	// NTC, or -1 to report a fixed 25 °C.
	ThermistorChannel int `yaml:"thermistor_channel"`
}

// DefaultSchedulerConfig returns the default configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		CyclePeriod: 500 * time.Millisecond,
		DutyCycle:   90,
		// 381 mV
		CellIgnore: 5000,
		// 2 mV
		Tolerance: 26,
		// 3.0 V
		MinBalanceVolt:     39321,
		BalanceWhileCharge: true,
		CommTimeout:        1000 * time.Millisecond,
		ThermistorChannel:  -1,
	}
}

// Validate checks the configuration.
func (c *SchedulerConfig) Validate() error {
	if c.DutyCycle < 1 || c.DutyCycle > 99 {
		return fmt.Errorf("duty cycle %d not in 1..99", c.DutyCycle)
	}
	if c.CyclePeriod <= 0 {
		return fmt.Errorf("invalid cycle period %v", c.CyclePeriod)
	}
	if c.CommTimeout <= 0 {
		return fmt.Errorf("invalid comm timeout %v", c.CommTimeout)
	}
	if c.ThermistorChannel >= ChipAux {
		return fmt.Errorf("thermistor channel %d not in -1..%d", c.ThermistorChannel, ChipAux-1)
	}
	return nil
}

// Steps returns the number of steps per cycle.
func (c *SchedulerConfig) Steps() int {
	return 100 / (100 - c.DutyCycle)
}

// StepPeriod returns the time between steps.
func (c *SchedulerConfig) StepPeriod() time.Duration {
	return c.CyclePeriod / time.Duration(c.Steps())
}

// Scheduler cycles through disabling balancing, reading all voltages,
// choosing cells to balance and keeping balancing on for the rest of the
// cycle. Step never blocks; it performs at most one exchange per call.
type Scheduler struct {
	Config SchedulerConfig

	link    *Link
	modules int
	steps   int
	period  time.Duration

	step      int
	stepTime  time.Time
	requested int
	resp      *Response
	cycles    int

	cells    [][ChipCells]uint16
	aux      [][ChipAux]uint16
	module   []uint16
	balance  [][ChipCells]bool
	minCell  uint16
	maxCell  uint16
	hasCells bool
}

// NewScheduler creates a Scheduler for a chain of modules chips.
func NewScheduler(link *Link, modules int, conf SchedulerConfig) *Scheduler {
	return &Scheduler{
		Config:  conf,
		link:    link,
		modules: modules,
		steps:   conf.Steps(),
		period:  conf.StepPeriod(),
		cells:   make([][ChipCells]uint16, modules),
		aux:     make([][ChipAux]uint16, modules),
		module:  make([]uint16, modules),
		balance: make([][ChipCells]bool, modules),
	}
}

// Step advances the cycle.
func (s *Scheduler) Step(now time.Time) error {
	if r := s.link.Poll(); r != nil {
		s.resp = r
	}
	if s.link.Waiting() && s.link.Elapsed(now) > s.Config.CommTimeout {
		glog.Errorf("pl455: module %d not responding for %v", s.requested-1, s.Config.CommTimeout)
		s.link.Abandon()
		s.requested, s.step, s.stepTime, s.resp = 0, 0, now, nil
		return nil
	}
	if !s.stepTime.IsZero() && now.Sub(s.stepTime) <= s.period {
		return nil
	}

	switch s.step {
	case 0:
		s.resp = nil
		err := s.link.Write(ScopeBroadcast, 0, RegBalanceEnable, 0, 0)
		s.advance(now)
		return err
	case 1:
		return s.readVoltages(now)
	default:
		err := s.writeBalance()
		s.advance(now)
		return err
	}
}

func (s *Scheduler) advance(now time.Time) {
	s.stepTime = now
	if s.step++; s.step >= s.steps {
		s.step = 0
	}
}

func (s *Scheduler) request(module int, now time.Time) error {
	s.resp = nil
	s.requested = module + 1
	return s.link.Request(ScopeSingle, byte(module), 0, RegCommand, 1, now)
}

func (s *Scheduler) readVoltages(now time.Time) error {
	if s.modules == 0 {
		s.advance(now)
		return nil
	}
	if s.requested == 0 {
		return s.request(0, now)
	}
	if s.resp == nil {
		return nil
	}
	s.parse(s.requested-1, s.resp.Frame)
	s.resp = nil
	if s.requested < s.modules {
		return s.request(s.requested, now)
	}
	s.requested = 0
	s.findMinMax()
	s.chooseBalanceCells()
	err := s.writeBalance()
	s.cycles++
	s.advance(now)
	return err
}

func (s *Scheduler) parse(module int, frame []byte) {
	if len(frame) < voltageFrameSize {
		glog.Warningf("pl455: short voltage response from module %d: %d bytes", module, len(frame))
		return
	}
	for i := 0; i < ChipCells; i++ {
		s.cells[module][ChipCells-1-i] = uint16(frame[2*i+1])<<8 | uint16(frame[2*i+2])
	}
	for i := 0; i < ChipAux; i++ {
		s.aux[module][ChipAux-1-i] = uint16(frame[2*i+33])<<8 | uint16(frame[2*i+34])
	}
	s.module[module] = uint16(frame[49])<<8 | uint16(frame[50])
}

func (s *Scheduler) findMinMax() {
	s.minCell, s.maxCell, s.hasCells = 0xFFFF, 0, false
	for m := range s.cells {
		for _, v := range s.cells[m] {
			if v < s.Config.CellIgnore {
				continue
			}
			s.hasCells = true
			if v > s.maxCell {
				s.maxCell = v
			}
			if v < s.minCell {
				s.minCell = v
			}
		}
	}
	if !s.hasCells {
		s.minCell = 0
	}
	if glog.V(2) {
		glog.Infof("pl455: cells min=%d max=%d diff=%d (0.1mV)",
			s.MinCellVoltage(), s.MaxCellVoltage(), s.DiffCellVoltage())
	}
}

func (s *Scheduler) chooseBalanceCells() {
	threshold := int(s.minCell) + int(s.Config.Tolerance)
	for m := range s.cells {
		for c, v := range s.cells[m] {
			s.balance[m][c] = s.hasCells && int(v) > threshold &&
				(v > s.Config.MinBalanceVolt || s.Config.BalanceWhileCharge)
		}
	}
}

// BalanceBitmap returns the balance enable register of a module,
// cells 0-7 in the first byte.
func (s *Scheduler) BalanceBitmap(module int) []byte {
	b := []byte{0, 0}
	for c, on := range s.balance[module] {
		if on {
			b[c/8] |= 1 << uint(c%8)
		}
	}
	return b
}

func (s *Scheduler) writeBalance() error {
	for m := 0; m < s.modules; m++ {
		if err := s.link.Write(ScopeSingle, byte(m), RegBalanceEnable, s.BalanceBitmap(m)...); err != nil {
			return err
		}
	}
	return nil
}

// Modules returns the number of chips.
func (s *Scheduler) Modules() int {
	return s.modules
}

// Cycles returns the number of completed voltage readings.
func (s *Scheduler) Cycles() int {
	return s.cycles
}

// CellVoltage returns a cell voltage in 0.1 mV.
func (s *Scheduler) CellVoltage(module, cell int) uint16 {
	return AdcToVolt(s.cells[module][cell])
}

// AuxVoltage returns an aux input voltage in 0.1 mV.
func (s *Scheduler) AuxVoltage(module, aux int) uint16 {
	return AdcToVolt(s.aux[module][aux])
}

// ModuleVoltage returns the voltage of a module in 0.01 V.
func (s *Scheduler) ModuleVoltage(module int) uint16 {
	return AdcToModuleVolt(s.module[module])
}

// Temperature returns the temperature in °C of an NTC on an aux input.
func (s *Scheduler) Temperature(module, aux int) float64 {
	return AdcToTemp(s.aux[module][aux])
}

// Balancing indicates a cell is being balanced.
func (s *Scheduler) Balancing(module, cell int) bool {
	return s.balance[module][cell]
}

// MinCellVoltage returns the lowest connected cell voltage in 0.1 mV.
func (s *Scheduler) MinCellVoltage() uint16 {
	return AdcToVolt(s.minCell)
}

// MaxCellVoltage returns the highest cell voltage in 0.1 mV.
func (s *Scheduler) MaxCellVoltage() uint16 {
	return AdcToVolt(s.maxCell)
}

// DiffCellVoltage returns the spread of cell voltages in 0.1 mV.
func (s *Scheduler) DiffCellVoltage() uint16 {
	return AdcToVolt(s.maxCell - s.minCell)
}

// Fill writes the latest readings into a complete module snapshot.
// Chip m provides cells m*16.. and ADC channels m*8.., the half module
// voltages come from the first two chips and the current from the last
// aux input of the first chip.
func (s *Scheduler) Fill(snap *telemetry.ModuleSnapshot) {
	var (
		state telemetry.ModuleState
		cells [telemetry.NumCells]telemetry.CellRecord
		adc   [telemetry.NumADC]uint16
	)
	for m := 0; m < s.modules && m*ChipCells < telemetry.NumCells; m++ {
		for c := 0; c < ChipCells; c++ {
			cells[m*ChipCells+c] = telemetry.CellRecord{
				Voltage:   s.CellVoltage(m, c),
				Balancing: s.Balancing(m, c),
			}
		}
	}
	for m := 0; m < s.modules && m*ChipAux < telemetry.NumADC; m++ {
		for a := 0; a < ChipAux; a++ {
			adc[m*ChipAux+a] = s.AuxVoltage(m, a)
		}
	}
	if s.modules > 0 {
		state.M1 = s.ModuleVoltage(0) / 10
		// 0.1 mV on the shunt amplifier, 25000 is zero current
		state.Current = int16((int(s.AuxVoltage(0, ChipAux-1)) - 25000) * 18)
	}
	if s.modules > 1 {
		state.M2 = s.ModuleVoltage(1) / 10
	}
	state.Temperature = 250
	if ch := s.Config.ThermistorChannel; ch >= 0 && s.modules > 0 {
		if t := math.Round(s.Temperature(0, ch) * 10); t > 0 && t < 0xFFFF {
			state.Temperature = uint16(t)
		} else {
			state.Temperature = 0
		}
	}
	snap.SetComplete(state, cells, adc)
}
