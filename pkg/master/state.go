package master

import (
	"github.com/golang/glog"

	"github.com/robotalks/bms.go/pkg/pylon"
)

// StateInputs are what the system state depends on.
type StateInputs struct {
	CommOK             bool
	CriticalFault      bool
	ChargeForbidden    bool
	DischargeForbidden bool
	// Current in 0.1 A, positive when charging.
	Current int
	// IdleCurrent is the half width of the idle band in 0.1 A.
	IdleCurrent int
}

// DetermineState derives the system state. Sleep is never returned.
func DetermineState(in StateInputs) pylon.State {
	switch {
	case !in.CommOK, in.CriticalFault:
		return pylon.StateIdle
	case in.ChargeForbidden && in.DischargeForbidden:
		return pylon.StateIdle
	case in.Current > in.IdleCurrent:
		if in.ChargeForbidden {
			glog.Warningf("Charging at %.1f A while charging is forbidden", float64(in.Current)/10)
			return pylon.StateIdle
		}
		return pylon.StateCharge
	case in.Current < -in.IdleCurrent:
		if in.DischargeForbidden {
			glog.Warningf("Discharging at %.1f A while discharging is forbidden", float64(in.Current)/10)
			return pylon.StateIdle
		}
		return pylon.StateDischarge
	}
	return pylon.StateIdle
}
