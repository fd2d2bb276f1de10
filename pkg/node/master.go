package node

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/bms.go/pkg/can"
	fx "github.com/robotalks/bms.go/pkg/framework"
	"github.com/robotalks/bms.go/pkg/master"
	"github.com/robotalks/bms.go/pkg/pylon"
	"github.com/robotalks/bms.go/pkg/telemetry"
)

// DefaultEvalInterval is how often the master evaluates the pack
// without being asked.
const DefaultEvalInterval = time.Second

// Observer is notified on the loop goroutine and must not block.
type Observer interface {
	ModuleUpdated(module int, snap *telemetry.ModuleSnapshot, now time.Time)
	PackEvaluated(ensemble *pylon.Ensemble, now time.Time)
}

// Master routes received frames to the pack engine and the host handler.
type Master struct {
	Engine       *master.Engine
	Host         *master.HostHandler
	Assembler    *telemetry.Assembler
	EvalInterval time.Duration
	Observers    []Observer

	lastEval time.Time
}

// NewMaster creates a Master answering the host through sender.
func NewMaster(conf master.Config, sender master.Sender, now time.Time) *Master {
	engine := master.NewEngine(conf, now)
	return &Master{
		Engine:       engine,
		Host:         master.NewHostHandler(engine, sender, master.DefaultRequestQueueSize),
		Assembler:    telemetry.NewAssembler(conf.Modules),
		EvalInterval: DefaultEvalInterval,
	}
}

// PutSnapshot implements SnapshotSink. The master feeds its own module
// this way.
func (m *Master) PutSnapshot(ctx context.Context, module int, snap *telemetry.ModuleSnapshot, now time.Time) error {
	if err := m.Engine.Update(module, *snap, now); err != nil {
		return err
	}
	for _, o := range m.Observers {
		o.ModuleUpdated(module, snap, now)
	}
	return nil
}

// HandleFrame dispatches one received frame.
func (m *Master) HandleFrame(ctx context.Context, frame can.Frame, now time.Time) {
	if !frame.Extended {
		return
	}
	switch {
	case frame.ID == pylon.RequestID:
		req, err := pylon.ParseRequest(frame.Payload())
		if err != nil {
			glog.Warningf("Host request dropped: %v", err)
			return
		}
		m.Host.Enqueue(req)
	case telemetry.IsTelemetry(frame.ID):
		module, complete, err := m.Assembler.Apply(frame.ID, frame.Payload())
		if err != nil {
			glog.Warningf("Telemetry %08x dropped: %v", frame.ID, err)
			return
		}
		if complete {
			snap := m.Assembler.Snapshot(module)
			m.PutSnapshot(ctx, module, &snap, now)
		}
	}
}

// Control implements framework.Controller.
func (m *Master) Control(cc fx.ControlContext) error {
	now := cc.Now()
	cc.Messages().ProcessMessages(func(msg fx.Message) bool {
		frame, ok := msg.(can.Frame)
		if ok {
			m.HandleFrame(cc.Context(), frame, now)
		}
		return ok
	})
	err := m.Host.Drain(cc.Context(), now)
	if m.EvalInterval > 0 && (m.lastEval.IsZero() || now.Sub(m.lastEval) >= m.EvalInterval) {
		m.lastEval = now
		m.Engine.Process(now)
		ensemble := m.Engine.Ensemble()
		for _, o := range m.Observers {
			o.PackEvaluated(&ensemble, now)
		}
	}
	return err
}

// HostFilter accepts frames the master consumes.
func HostFilter() can.FrameFilter {
	return can.Or(
		can.ByID(pylon.RequestID),
		can.ByMask(telemetry.BaseAddress, telemetry.BaseMask),
	)
}

// Router receives frames from a bus and posts them into the loop.
type Router struct {
	Bus    can.Bus
	Filter can.FrameFilter
	// Poster defaults to the loop running the Router.
	Poster fx.LoopControl
}

// Name implements framework.Named.
func (r *Router) Name() string {
	return "can-router"
}

// Run implements framework.Runnable.
func (r *Router) Run(ctx context.Context) error {
	poster := r.Poster
	if poster == nil {
		poster = fx.LoopCtlFrom(ctx)
	}
	filter := r.Filter
	if filter == nil {
		filter = HostFilter()
	}
	for {
		frame, err := can.ReceiveMatching(ctx, r.Bus, filter)
		if err != nil {
			return err
		}
		glog.V(4).Infof("CAN RX %v", frame)
		if poster.PostMessage(frame) {
			poster.TriggerNext()
		}
	}
}
