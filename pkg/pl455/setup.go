package pl455

import (
	"time"

	"github.com/golang/glog"
)

// Chain bring-up timing
const (
	WakeSettle      = 100 * time.Millisecond
	CommSettle      = 2 * time.Millisecond
	DefaultBaudCode = 1
)

type chainPhase int

const (
	chainWake chainPhase = iota
	chainComm
	chainConfigure
	chainDiscover
	chainDevices
	chainReady
)

// Chain brings up a daisy chain of chips: it waits for the chips to
// settle, configures communication and sampling on all of them, runs
// address discovery and finally configures each chip's links according
// to its position.
type Chain struct {
	Link       *Link
	MaxModules int
	BaudCode   byte

	phase     chainPhase
	at        time.Time
	discovery *Discovery
	modules   int
}

// NewChain creates a Chain for up to maxModules chips.
func NewChain(link *Link, maxModules int) *Chain {
	return &Chain{Link: link, MaxModules: maxModules, BaudCode: DefaultBaudCode}
}

// Ready indicates bring-up has completed.
func (c *Chain) Ready() bool {
	return c.phase == chainReady
}

// Modules returns the number of chips discovered.
func (c *Chain) Modules() int {
	return c.modules
}

// Step advances bring-up without blocking.
func (c *Chain) Step(now time.Time) (ready bool, err error) {
	switch c.phase {
	case chainWake:
		if c.at.IsZero() {
			c.at = now.Add(WakeSettle)
		}
		if !now.Before(c.at) {
			c.phase = chainComm
		}
	case chainComm:
		if err = c.Link.Write(ScopeBroadcast, 0, RegCommConfig, commAll, c.BaudCode<<4); err != nil {
			return false, err
		}
		c.phase, c.at = chainConfigure, now.Add(CommSettle)
	case chainConfigure:
		if now.Before(c.at) {
			return false, nil
		}
		for _, w := range DefaultConfiguration {
			if err = c.Link.Write(ScopeBroadcast, 0, w.Reg, w.Data...); err != nil {
				return false, err
			}
		}
		c.discovery = NewDiscovery(c.Link, c.MaxModules)
		c.phase = chainDiscover
	case chainDiscover:
		var done bool
		if done, err = c.discovery.Step(now); err != nil {
			return false, err
		}
		if done {
			c.modules = c.discovery.Count()
			c.phase = chainDevices
		}
	case chainDevices:
		if c.modules == 0 {
			glog.Error("pl455: no modules found")
		}
		for i := 0; i < c.modules; i++ {
			if err = c.Link.Write(ScopeSingle, byte(i), RegCommConfig, CommConfig(i, c.modules, c.BaudCode)...); err != nil {
				return false, err
			}
		}
		c.phase = chainReady
		glog.Infof("pl455: chain ready with %d modules", c.modules)
	}
	return c.Ready(), nil
}
