package pl455

import "math"

// ADC full scale and references
const (
	adcFullScale = 65535
	// 5 V reference in 0.1 mV
	cellVoltsScale = 50000
	// 125 V in 0.01 V
	moduleVoltsScale = 12500
)

// NTC thermistor on an aux channel, pulled up by a fixed resistor.
const (
	ntcT0     = 290.0
	ntcR0     = 100000.0
	ntcRFixed = 150000.0
	ntcBeta   = 3950.0
	kelvin0   = 273.0
)

// AdcToVolt converts a cell or aux reading to 0.1 mV.
func AdcToVolt(adc uint16) uint16 {
	return uint16(uint32(cellVoltsScale) * uint32(adc) / adcFullScale)
}

// AdcToModuleVolt converts the module voltage reading to 0.01 V.
func AdcToModuleVolt(adc uint16) uint16 {
	return uint16(uint32(moduleVoltsScale) * uint32(adc) / adcFullScale)
}

// AdcToTemp converts an NTC divider reading to °C.
func AdcToTemp(adc uint16) float64 {
	if adc >= adcFullScale {
		return math.Inf(-1)
	}
	r := float64(adc) * ntcRFixed / float64(adcFullScale-uint32(adc))
	invT := 1/ntcT0 + math.Log(r/ntcR0)/ntcBeta
	return 1/invT - kelvin0
}
