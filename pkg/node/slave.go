package node

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/bms.go/pkg/can"
	fx "github.com/robotalks/bms.go/pkg/framework"
	"github.com/robotalks/bms.go/pkg/telemetry"
)

// DefaultReportInterval is how often a module reports its snapshot.
const DefaultReportInterval = time.Second

// SnapshotSink receives module snapshots.
type SnapshotSink interface {
	PutSnapshot(ctx context.Context, module int, snap *telemetry.ModuleSnapshot, now time.Time) error
}

// Slave samples the module of this node and reports it periodically.
type Slave struct {
	Module         int
	Chip           Chip
	ReportInterval time.Duration
	Sinks          []SnapshotSink

	lastReport time.Time
	reports    int
}

// Control implements framework.Controller.
func (s *Slave) Control(cc fx.ControlContext) error {
	now := cc.Now()
	ready, err := s.Chip.Step(now)
	if err != nil {
		return err
	}
	if !ready {
		return nil
	}
	interval := s.ReportInterval
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	if !s.lastReport.IsZero() && now.Sub(s.lastReport) < interval {
		return nil
	}
	s.lastReport = now
	var snap telemetry.ModuleSnapshot
	s.Chip.Fill(&snap)
	s.reports++
	var errs fx.AggregatedError
	for _, sink := range s.Sinks {
		errs.Add(sink.PutSnapshot(cc.Context(), s.Module, &snap, now))
	}
	return errs.Aggregate()
}

// Reports returns the number of snapshots reported.
func (s *Slave) Reports() int {
	return s.reports
}

// BusPublisher sends snapshots as telemetry fragments on a CAN bus.
type BusPublisher struct {
	Bus can.Bus
}

// PutSnapshot implements SnapshotSink.
func (p *BusPublisher) PutSnapshot(ctx context.Context, module int, snap *telemetry.ModuleSnapshot, now time.Time) error {
	var errs fx.AggregatedError
	for _, frag := range telemetry.Fragments(module, snap) {
		frame, err := can.NewFrame(frag.ID, frag.Payload)
		if err != nil {
			errs.Add(err)
			continue
		}
		if err = p.Bus.Send(ctx, frame); err != nil {
			errs.Add(fmt.Errorf("send %v: %w", frag, err))
		}
	}
	if errs.Len() > 0 {
		glog.Errorf("Module %d telemetry: %d of %d fragments failed", module, errs.Len(), telemetry.NumFragments)
	}
	return errs.Aggregate()
}

// BusSender sends host messages on a CAN bus.
type BusSender struct {
	Bus can.Bus
}

// Send implements master.Sender.
func (s *BusSender) Send(ctx context.Context, id uint32, payload []byte) error {
	frame, err := can.NewFrame(id, payload)
	if err != nil {
		return err
	}
	return s.Bus.Send(ctx, frame)
}
