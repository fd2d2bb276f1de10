package pl455

import (
	"time"

	"github.com/golang/glog"
)

// Discovery timing
const (
	AddressAssignDelay = 20 * time.Millisecond
	ProbeTimeout       = 1000 * time.Millisecond
)

type discoveryPhase int

const (
	discoveryStart discoveryPhase = iota
	discoveryAssign
	discoveryProbe
	discoveryDone
)

// Discovery assigns addresses 0..MaxModules-1 to the chain and then
// counts the chips answering to them in order. The count is learned
// from the first address that stays silent for ProbeTimeout.
type Discovery struct {
	link       *Link
	maxModules int

	phase  discoveryPhase
	next   int
	at     time.Time
	sent   bool
	probed int
}

// NewDiscovery creates a Discovery for up to maxModules chips.
func NewDiscovery(link *Link, maxModules int) *Discovery {
	return &Discovery{link: link, maxModules: maxModules}
}

// Done indicates discovery has finished.
func (d *Discovery) Done() bool {
	return d.phase == discoveryDone
}

// Count returns the number of chips confirmed so far.
func (d *Discovery) Count() int {
	return d.probed
}

// Step advances discovery by at most one exchange.
func (d *Discovery) Step(now time.Time) (done bool, err error) {
	switch d.phase {
	case discoveryStart:
		if err = d.link.Write(ScopeBroadcast, 0, RegDevControl, startAutoAddress); err != nil {
			return false, err
		}
		d.phase, d.next, d.at = discoveryAssign, 0, now.Add(AddressAssignDelay)
	case discoveryAssign:
		if now.Before(d.at) {
			return false, nil
		}
		if err = d.link.Write(ScopeBroadcast, 0, RegAddress, byte(d.next)); err != nil {
			return false, err
		}
		d.next++
		d.at = now.Add(AddressAssignDelay)
		if d.next >= d.maxModules {
			d.phase, d.probed, d.sent = discoveryProbe, 0, false
		}
	case discoveryProbe:
		d.probe(now)
	}
	return d.Done(), nil
}

func (d *Discovery) probe(now time.Time) {
	if d.probed >= d.maxModules {
		d.finish()
		return
	}
	if !d.sent {
		if err := d.link.Request(ScopeSingle, byte(d.probed), 0, RegAddress, 1, now); err != nil {
			glog.Errorf("pl455: probe %d: %v", d.probed, err)
			d.finish()
			return
		}
		d.sent, d.at = true, now
		return
	}
	if resp := d.link.Poll(); resp != nil {
		// init byte, address, 2 CRC bytes
		if len(resp.Frame) == 4 && int(resp.Frame[1]) == d.probed {
			d.probed++
			d.sent, d.at = false, now
			if d.probed >= d.maxModules {
				d.finish()
			}
			return
		}
		glog.Warningf("pl455: unexpected probe response % x", resp.Frame)
	}
	if now.Sub(d.at) >= ProbeTimeout {
		d.link.Abandon()
		d.finish()
	}
}

func (d *Discovery) finish() {
	d.phase = discoveryDone
	glog.Infof("Discovered %d modules", d.probed)
}
