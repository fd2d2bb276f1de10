package node

import (
	"context"
	"fmt"
	"time"

	"github.com/robotalks/bms.go/pkg/can"
	fx "github.com/robotalks/bms.go/pkg/framework"
	"github.com/robotalks/bms.go/pkg/master"
	"github.com/robotalks/bms.go/pkg/telemetry"
)

// Options describe a node.
type Options struct {
	// Module is the module index of this node.
	Module int
	// Master enables pack aggregation on this node.
	Master bool

	Chip           Chip
	Bus            can.Bus
	ReportInterval time.Duration
	EvalInterval   time.Duration
	Engine         master.Config
	// Observers see every module snapshot, on the master also the
	// pack evaluations.
	Observers []Observer
	// Runnables are started with the loop, e.g. link and bus receivers.
	Runnables []fx.Runnable
}

// Node is the set of controllers of a node.
type Node struct {
	Slave     *Slave
	Master    *Master
	Router    *Router
	Runnables []fx.Runnable
}

// New creates a Node.
func New(opts Options, now time.Time) (*Node, error) {
	if opts.Chip == nil {
		return nil, fmt.Errorf("node %d: chip required", opts.Module)
	}
	n := &Node{
		Slave: &Slave{
			Module:         opts.Module,
			Chip:           opts.Chip,
			ReportInterval: opts.ReportInterval,
		},
		Runnables: opts.Runnables,
	}
	if opts.Master {
		if err := opts.Engine.Validate(); err != nil {
			return nil, err
		}
		if opts.Module >= opts.Engine.Modules {
			return nil, fmt.Errorf("node %d: module out of pack of %d", opts.Module, opts.Engine.Modules)
		}
		if opts.Bus == nil {
			return nil, fmt.Errorf("node %d: master requires a CAN bus", opts.Module)
		}
		n.Master = NewMaster(opts.Engine, &BusSender{Bus: opts.Bus}, now)
		n.Master.Observers = opts.Observers
		if opts.EvalInterval > 0 {
			n.Master.EvalInterval = opts.EvalInterval
		}
		n.Router = &Router{Bus: opts.Bus, Filter: HostFilter()}
		n.Slave.Sinks = append(n.Slave.Sinks, n.Master)
	} else {
		if opts.Bus != nil {
			n.Slave.Sinks = append(n.Slave.Sinks, &BusPublisher{Bus: opts.Bus})
		}
		for _, o := range opts.Observers {
			n.Slave.Sinks = append(n.Slave.Sinks, observerSink{Observer: o})
		}
	}
	return n, nil
}

type observerSink struct {
	Observer
}

func (s observerSink) PutSnapshot(ctx context.Context, module int, snap *telemetry.ModuleSnapshot, now time.Time) error {
	s.ModuleUpdated(module, snap, now)
	return nil
}

// AddToLoop implements framework.LoopAdder.
func (n *Node) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvSense, n.Slave)
	if n.Master != nil {
		l.AddController(fx.PrLvControl, n.Master)
		l.AddRunnable(n.Router)
	}
	l.AddRunnable(n.Runnables...)
}
