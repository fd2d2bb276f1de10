// Package bms provides shell commands querying the pack over CAN.
package bms

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/bms.go/pkg/cli/sh"
	"github.com/robotalks/bms.go/pkg/pylon"
	"github.com/robotalks/bms.go/pkg/telemetry"
)

// DefaultListenTime is how long modules are listened to.
const DefaultListenTime = 3 * time.Second

// FormatEnsemble renders the ensemble in engineering units.
func FormatEnsemble(e *pylon.Ensemble) string {
	var w bytes.Buffer
	fmt.Fprintf(&w, "state:       %s\n", e.Bits.Status.State)
	fmt.Fprintf(&w, "voltage:     %.1f V\n", float64(e.Status.TotalVoltage)/10)
	fmt.Fprintf(&w, "current:     %.1f A\n", float64(int(e.Status.Current)-pylon.CurrentOffset)/10)
	fmt.Fprintf(&w, "temperature: %.1f °C\n", float64(int(e.Status.Temperature)-pylon.TemperatureOffset)/10)
	fmt.Fprintf(&w, "soc/soh:     %d%% / %d%%\n", e.Status.SOC, e.Status.SOH)
	fmt.Fprintf(&w, "cutoff:      charge %.1f V, discharge %.1f V\n",
		float64(e.Params.ChargeCutoffVoltage)/10, float64(e.Params.DischargeCutoffVoltage)/10)
	fmt.Fprintf(&w, "limits:      charge %.1f A, discharge %.1f A\n",
		float64(int(e.Params.MaxChargeCurrent)-pylon.CurrentOffset)/10,
		float64(pylon.CurrentOffset-int(e.Params.MaxDischargeCurrent))/10)
	fmt.Fprintf(&w, "cells:       max %d mV #%d, min %d mV #%d\n",
		e.CellVoltage.Max, e.CellVoltage.MaxIndex, e.CellVoltage.Min, e.CellVoltage.MinIndex)
	fmt.Fprintf(&w, "modules:     max %.1f V #%d, min %.1f V #%d\n",
		float64(e.ModuleVoltage.Max)/1000, e.ModuleVoltage.MaxIndex,
		float64(e.ModuleVoltage.Min)/1000, e.ModuleVoltage.MinIndex)
	var forbidden []string
	if e.ChargeDischargeStatus.ChargeForbidden {
		forbidden = append(forbidden, "charge")
	}
	if e.ChargeDischargeStatus.DischargeForbidden {
		forbidden = append(forbidden, "discharge")
	}
	if len(forbidden) == 0 {
		forbidden = append(forbidden, "none")
	}
	fmt.Fprintf(&w, "forbidden:   %s\n", strings.Join(forbidden, ", "))
	fmt.Fprintf(&w, "flags:       fault %02x, alarm %04x, protection %04x\n",
		uint8(e.Bits.Fault), uint16(e.Bits.Alarm), uint16(e.Bits.Protection))
	return w.String()
}

// FormatModule renders one module snapshot.
func FormatModule(module int, s *telemetry.ModuleSnapshot) string {
	var w bytes.Buffer
	fmt.Fprintf(&w, "module %d: %.1f V (%.1f + %.1f), %.4f A, %.1f °C\n", module,
		float64(s.State.Voltage())/10, float64(s.State.M1)/10, float64(s.State.M2)/10,
		float64(s.State.Current)/10000, float64(s.State.Temperature)/10)
	for n, cell := range s.Cells {
		mark := " "
		if cell.Balancing {
			mark = "*"
		}
		fmt.Fprintf(&w, "%3d:%.4f%s", n, float64(cell.Voltage)/10000, mark)
		if n%8 == 7 {
			w.WriteByte('\n')
		}
	}
	return w.String()
}

type equipmentReply struct {
	ID      uint32
	Message pylon.Message
}

var (
	// EnsembleCmd queries the ensemble information.
	EnsembleCmd = ishell.Cmd{
		Name:    "ensemble",
		Aliases: []string{"e", "status"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			e, err := s.Conn.Client.Ensemble(s.Conn.Ctx)
			if err != nil {
				c.Err(err)
				return
			}
			sh.Print(c, e, FormatEnsemble(e))
		}),
	}

	// EquipmentCmd queries the system equipment information.
	EquipmentCmd = ishell.Cmd{
		Name:    "equipment",
		Aliases: []string{"eq"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			replies, err := s.Conn.Client.Equipment(s.Conn.Ctx)
			if err != nil {
				c.Err(err)
				return
			}
			var w bytes.Buffer
			out := make([]equipmentReply, 0, len(replies))
			for _, msg := range replies {
				out = append(out, equipmentReply{ID: msg.ID(), Message: msg})
				fmt.Fprintf(&w, "%04x %+v\n", msg.ID(), msg)
			}
			if len(replies) == 0 {
				w.WriteString("no reply\n")
			}
			sh.Print(c, out, w.String())
		}),
	}

	// ModulesCmd listens to module telemetry.
	ModulesCmd = ishell.Cmd{
		Name:    "modules",
		Aliases: []string{"m"},
		Help:    "[DURATION]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			listen := DefaultListenTime
			if len(c.Args) > 0 {
				d, err := time.ParseDuration(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				listen = d
			}
			snaps, err := s.Conn.Client.Modules(s.Conn.Ctx, s.Config.Modules, listen)
			if err != nil {
				c.Err(err)
				return
			}
			indices := make([]int, 0, len(snaps))
			for module := range snaps {
				indices = append(indices, module)
			}
			sort.Ints(indices)
			var w bytes.Buffer
			for _, module := range indices {
				snap := snaps[module]
				w.WriteString(FormatModule(module, &snap))
			}
			if missing := s.Config.Modules - len(snaps); missing > 0 {
				fmt.Fprintf(&w, "%d modules without complete telemetry\n", missing)
			}
			sh.Print(c, snaps, w.String())
		}),
	}
)

func init() {
	sh.AddCmds(
		&EnsembleCmd,
		&EquipmentCmd,
		&ModulesCmd,
	)
}
