package master

// SOCPoint maps a cell voltage (0.1 mV) to a state of charge (%).
type SOCPoint struct {
	Voltage int
	SOC     int
}

// SOCTable is an LFP open circuit voltage curve, ascending in voltage.
var SOCTable = []SOCPoint{
	{25000, 0},
	{28000, 5},
	{31000, 10},
	{32000, 20},
	{32500, 40},
	{33000, 80},
	{33500, 95},
	{34500, 98},
	{36000, 100},
	{36500, 100},
}

// SOC estimates the state of charge from the lowest cell voltage.
func SOC(cellVoltage int) uint8 {
	return socFrom(SOCTable, cellVoltage)
}

func socFrom(table []SOCPoint, v int) uint8 {
	first, last := table[0], table[len(table)-1]
	if v <= first.Voltage {
		return clampSOC(first.SOC)
	}
	if v >= last.Voltage {
		return clampSOC(last.SOC)
	}
	for n := 0; n < len(table)-1; n++ {
		p1, p2 := table[n], table[n+1]
		if v >= p1.Voltage && v < p2.Voltage {
			return clampSOC(p1.SOC + (v-p1.Voltage)*(p2.SOC-p1.SOC)/(p2.Voltage-p1.Voltage))
		}
	}
	return 50
}

func clampSOC(soc int) uint8 {
	if soc < 0 {
		return 0
	}
	if soc > 100 {
		return 100
	}
	return uint8(soc)
}
