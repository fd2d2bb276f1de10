package master

import (
	"errors"
	"fmt"
	"time"
)

// Default pack layout
const (
	DefaultModules     = 2
	DefaultDataTimeout = 5000 * time.Millisecond
	// DefaultIdleCurrent is the idle band in 0.1 A.
	DefaultIdleCurrent = 2
	// DefaultSOH is reported until health tracking exists.
	DefaultSOH = 99
)

// Thresholds are the alarm and protection limits. Cell voltages are in
// 0.1 mV, module voltages in 0.1 V, temperatures in 0.1 °C and currents
// in 0.1 A (discharge negative).
type Thresholds struct {
	CellOverVoltProtect  int `yaml:"cell_over_volt_protect"`
	CellUnderVoltProtect int `yaml:"cell_under_volt_protect"`
	CellOverVoltAlarm    int `yaml:"cell_over_volt_alarm"`
	CellUnderVoltAlarm   int `yaml:"cell_under_volt_alarm"`

	ModuleOverVoltProtect  int `yaml:"module_over_volt_protect"`
	ModuleUnderVoltProtect int `yaml:"module_under_volt_protect"`
	ModuleOverVoltAlarm    int `yaml:"module_over_volt_alarm"`
	ModuleUnderVoltAlarm   int `yaml:"module_under_volt_alarm"`

	ChargeOverTempProtect     int `yaml:"charge_over_temp_protect"`
	ChargeUnderTempProtect    int `yaml:"charge_under_temp_protect"`
	DischargeOverTempProtect  int `yaml:"discharge_over_temp_protect"`
	DischargeUnderTempProtect int `yaml:"discharge_under_temp_protect"`
	ChargeHighTempAlarm       int `yaml:"charge_high_temp_alarm"`
	ChargeLowTempAlarm        int `yaml:"charge_low_temp_alarm"`
	DischargeHighTempAlarm    int `yaml:"discharge_high_temp_alarm"`
	DischargeLowTempAlarm     int `yaml:"discharge_low_temp_alarm"`

	ChargeOverCurrentProtect    int `yaml:"charge_over_current_protect"`
	DischargeOverCurrentProtect int `yaml:"discharge_over_current_protect"`
	ChargeOverCurrentAlarm      int `yaml:"charge_over_current_alarm"`
	DischargeOverCurrentAlarm   int `yaml:"discharge_over_current_alarm"`
}

// Derating holds the current limit reduction steps.
type Derating struct {
	SOCHighCharge         int     `yaml:"soc_high_charge"`
	SOCHighChargeFactor   float64 `yaml:"soc_high_charge_factor"`
	SOCNearFull           int     `yaml:"soc_near_full"`
	SOCNearFullFactor     float64 `yaml:"soc_near_full_factor"`
	SOCLowDischarge       int     `yaml:"soc_low_discharge"`
	SOCLowDischargeFactor float64 `yaml:"soc_low_discharge_factor"`
	SOCNearEmpty          int     `yaml:"soc_near_empty"`
	SOCNearEmptyFactor    float64 `yaml:"soc_near_empty_factor"`

	// Imbalance is max-min cell voltage in 0.1 mV.
	Imbalance       int     `yaml:"imbalance"`
	ImbalanceFactor float64 `yaml:"imbalance_factor"`
	TempFactor      float64 `yaml:"temp_factor"`

	// SOH levels are descending.
	SOHLevels  [3]int     `yaml:"soh_levels,flow"`
	SOHFactors [3]float64 `yaml:"soh_factors,flow"`
}

// Config configures the Engine.
type Config struct {
	Modules     int           `yaml:"modules"`
	DataTimeout time.Duration `yaml:"data_timeout"`
	IdleCurrent int           `yaml:"idle_current"`
	SOH         int           `yaml:"soh"`
	Thresholds  Thresholds    `yaml:"thresholds"`
	Derating    Derating      `yaml:"derating"`
}

// DefaultThresholds returns the LFP limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CellOverVoltProtect:  36500,
		CellUnderVoltProtect: 25000,
		CellOverVoltAlarm:    36000,
		CellUnderVoltAlarm:   27000,

		ModuleOverVoltProtect:  1168,
		ModuleUnderVoltProtect: 800,
		ModuleOverVoltAlarm:    1152,
		ModuleUnderVoltAlarm:   864,

		ChargeOverTempProtect:     500,
		ChargeUnderTempProtect:    0,
		DischargeOverTempProtect:  600,
		DischargeUnderTempProtect: 10,
		ChargeHighTempAlarm:       450,
		ChargeLowTempAlarm:        50,
		DischargeHighTempAlarm:    550,
		DischargeLowTempAlarm:     50,

		ChargeOverCurrentProtect:    190,
		DischargeOverCurrentProtect: -190,
		ChargeOverCurrentAlarm:      180,
		DischargeOverCurrentAlarm:   -180,
	}
}

// DefaultDerating returns the default derating steps.
func DefaultDerating() Derating {
	return Derating{
		SOCHighCharge:         90,
		SOCHighChargeFactor:   0.5,
		SOCNearFull:           95,
		SOCNearFullFactor:     0.2,
		SOCLowDischarge:       10,
		SOCLowDischargeFactor: 0.5,
		SOCNearEmpty:          5,
		SOCNearEmptyFactor:    0.2,
		Imbalance:             1000,
		ImbalanceFactor:       0.5,
		TempFactor:            0.5,
		SOHLevels:             [3]int{90, 80, 70},
		SOHFactors:            [3]float64{0.9, 0.8, 0.7},
	}
}

// DefaultConfig returns the configuration of a two module pack.
func DefaultConfig() Config {
	return Config{
		Modules:     DefaultModules,
		DataTimeout: DefaultDataTimeout,
		IdleCurrent: DefaultIdleCurrent,
		SOH:         DefaultSOH,
		Thresholds:  DefaultThresholds(),
		Derating:    DefaultDerating(),
	}
}

// ErrInvalidConfig indicates a rejected configuration.
var ErrInvalidConfig = errors.New("invalid master config")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Modules < 1 || c.Modules > 16 {
		return invalid("modules %d not in 1..16", c.Modules)
	}
	if c.DataTimeout <= 0 {
		return invalid("data_timeout must be positive")
	}
	if c.IdleCurrent < 0 {
		return invalid("idle_current must not be negative")
	}
	if c.SOH < 0 || c.SOH > 100 {
		return invalid("soh %d not in 0..100", c.SOH)
	}
	t := &c.Thresholds
	pairs := []struct {
		name              string
		low, alarm, upper int
	}{
		{"cell voltage", t.CellUnderVoltProtect, t.CellUnderVoltAlarm, t.CellOverVoltAlarm},
		{"module voltage", t.ModuleUnderVoltProtect, t.ModuleUnderVoltAlarm, t.ModuleOverVoltAlarm},
		{"charge temperature", t.ChargeUnderTempProtect, t.ChargeLowTempAlarm, t.ChargeHighTempAlarm},
		{"discharge temperature", t.DischargeUnderTempProtect, t.DischargeLowTempAlarm, t.DischargeHighTempAlarm},
		{"current", t.DischargeOverCurrentProtect, t.DischargeOverCurrentAlarm, t.ChargeOverCurrentAlarm},
	}
	uppers := []int{t.CellOverVoltProtect, t.ModuleOverVoltProtect, t.ChargeOverTempProtect, t.DischargeOverTempProtect, t.ChargeOverCurrentProtect}
	for n, p := range pairs {
		if !(p.low <= p.alarm && p.alarm <= p.upper && p.upper <= uppers[n]) {
			return invalid("%s alarms must be inside protections", p.name)
		}
	}
	if t.ChargeOverCurrentAlarm <= 0 || t.DischargeOverCurrentAlarm >= 0 {
		return invalid("current alarms must be on both sides of zero")
	}
	d := &c.Derating
	factors := []float64{
		d.SOCHighChargeFactor, d.SOCNearFullFactor,
		d.SOCLowDischargeFactor, d.SOCNearEmptyFactor,
		d.ImbalanceFactor, d.TempFactor,
		d.SOHFactors[0], d.SOHFactors[1], d.SOHFactors[2],
	}
	for _, f := range factors {
		if f < 0 || f > 1 {
			return invalid("derating factor %v not in [0,1]", f)
		}
	}
	return nil
}

// ChargeCutoff is the pack charge cutoff voltage in 0.1 V.
func (c *Config) ChargeCutoff() uint16 {
	return uint16(360 * 32 * c.Modules / 10)
}

// DischargeCutoff is the pack discharge cutoff voltage in 0.1 V.
func (c *Config) DischargeCutoff() uint16 {
	return uint16(280 * 32 * c.Modules / 10)
}
