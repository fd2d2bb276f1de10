// Package node assembles the controllers running on a pack node: every
// node samples its own module, the master node additionally aggregates
// the pack and answers the host.
package node

import (
	"time"

	"github.com/robotalks/bms.go/pkg/pl455"
	"github.com/robotalks/bms.go/pkg/telemetry"
)

// Chip is the monitoring hardware of a module.
type Chip interface {
	// Step advances the chip state machines by one step. ready reports
	// readings are available for Fill.
	Step(now time.Time) (ready bool, err error)
	// Fill writes the latest readings as a complete snapshot.
	Fill(snap *telemetry.ModuleSnapshot)
}

// ChainChip is a Chip backed by a daisy chain of PL455 devices: the
// chain is set up first, then the balance scheduler takes over.
type ChainChip struct {
	Link   *pl455.Link
	Chain  *pl455.Chain
	Config pl455.SchedulerConfig

	scheduler *pl455.Scheduler
}

// NewChainChip creates a ChainChip over a link.
func NewChainChip(link *pl455.Link, maxDevices int, conf pl455.SchedulerConfig) *ChainChip {
	return &ChainChip{
		Link:   link,
		Chain:  pl455.NewChain(link, maxDevices),
		Config: conf,
	}
}

// Step implements Chip.
func (c *ChainChip) Step(now time.Time) (bool, error) {
	if c.scheduler == nil {
		ready, err := c.Chain.Step(now)
		if err != nil || !ready {
			return false, err
		}
		c.scheduler = pl455.NewScheduler(c.Link, c.Chain.Modules(), c.Config)
	}
	err := c.scheduler.Step(now)
	return c.scheduler.Cycles() > 0, err
}

// Fill implements Chip.
func (c *ChainChip) Fill(snap *telemetry.ModuleSnapshot) {
	if c.scheduler != nil {
		c.scheduler.Fill(snap)
	}
}

// Scheduler returns the balance scheduler once the chain is ready.
func (c *ChainChip) Scheduler() *pl455.Scheduler {
	return c.scheduler
}
