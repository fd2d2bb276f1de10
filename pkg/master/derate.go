package master

import "math"

// Conditions are the inputs of derating, taken from one evaluation.
type Conditions struct {
	SOC int
	SOH int
	// MinTemp and MaxTemp are module temperatures in 0.1 °C.
	MinTemp int
	MaxTemp int
	// Imbalance is max-min cell voltage in 0.1 mV.
	Imbalance int
}

// Rule reduces a current limit to Factor when Applies.
type Rule struct {
	Name    string
	Applies func(Conditions) bool
	Factor  float64
}

// Factor returns the smallest factor of the rules that apply, 1 if none.
func Factor(rules []Rule, c Conditions) float64 {
	f := 1.0
	for _, r := range rules {
		if r.Applies(c) && r.Factor < f {
			f = r.Factor
		}
	}
	return f
}

// Derate applies the rules to base, truncating like the integer
// current limits of the host protocol.
func Derate(base int, rules []Rule, c Conditions) uint16 {
	if base < 0 {
		base = -base
	}
	// the epsilon keeps 180*0.7 at 126
	return uint16(math.Floor(float64(base)*Factor(rules, c) + 1e-6))
}

func commonRules(d Derating) []Rule {
	rules := []Rule{
		{
			Name:    "imbalance",
			Applies: func(c Conditions) bool { return c.Imbalance > d.Imbalance },
			Factor:  d.ImbalanceFactor,
		},
	}
	for n := range d.SOHLevels {
		level := d.SOHLevels[n]
		rules = append(rules, Rule{
			Name:    "soh",
			Applies: func(c Conditions) bool { return c.SOH < level },
			Factor:  d.SOHFactors[n],
		})
	}
	return rules
}

// ChargeRules are the derating rules of the charge current limit.
func ChargeRules(d Derating, t Thresholds) []Rule {
	return append([]Rule{
		{
			Name: "temperature",
			Applies: func(c Conditions) bool {
				return c.MinTemp < t.ChargeLowTempAlarm || c.MaxTemp > t.ChargeHighTempAlarm
			},
			Factor: d.TempFactor,
		},
		{
			Name:    "full",
			Applies: func(c Conditions) bool { return c.SOC >= 100 },
			Factor:  0,
		},
		{
			Name:    "near full",
			Applies: func(c Conditions) bool { return c.SOC >= d.SOCNearFull },
			Factor:  d.SOCNearFullFactor,
		},
		{
			Name:    "high soc",
			Applies: func(c Conditions) bool { return c.SOC >= d.SOCHighCharge },
			Factor:  d.SOCHighChargeFactor,
		},
	}, commonRules(d)...)
}

// DischargeRules are the derating rules of the discharge current limit.
func DischargeRules(d Derating, t Thresholds) []Rule {
	return append([]Rule{
		{
			Name: "temperature",
			Applies: func(c Conditions) bool {
				return c.MinTemp < t.DischargeLowTempAlarm || c.MaxTemp > t.DischargeHighTempAlarm
			},
			Factor: d.TempFactor,
		},
		{
			Name:    "empty",
			Applies: func(c Conditions) bool { return c.SOC <= 0 },
			Factor:  0,
		},
		{
			Name:    "near empty",
			Applies: func(c Conditions) bool { return c.SOC <= d.SOCNearEmpty },
			Factor:  d.SOCNearEmptyFactor,
		},
		{
			Name:    "low soc",
			Applies: func(c Conditions) bool { return c.SOC <= d.SOCLowDischarge },
			Factor:  d.SOCLowDischargeFactor,
		},
	}, commonRules(d)...)
}
