// Package host talks to the pack from the inverter side of the CAN bus.
// It is used by tools to query the master node and to watch module
// telemetry.
package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/bms.go/pkg/can"
	"github.com/robotalks/bms.go/pkg/pylon"
	"github.com/robotalks/bms.go/pkg/telemetry"
)

// DefaultTimeout bounds waiting for replies.
const DefaultTimeout = time.Second

// ErrIncomplete indicates not all replies arrived in time.
var ErrIncomplete = errors.New("incomplete reply")

// Client sends host requests and collects replies.
type Client struct {
	Bus     can.Bus
	Timeout time.Duration
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// Request sends a request without waiting for replies.
func (c *Client) Request(ctx context.Context, t pylon.RequestType) error {
	payload, err := pylon.Request{Type: t}.MarshalBinary()
	if err != nil {
		return err
	}
	frame, err := can.NewFrame(pylon.RequestID, payload)
	if err != nil {
		return err
	}
	glog.V(2).Infof("request %s", t)
	return c.Bus.Send(ctx, frame)
}

// Ensemble requests the ensemble information and waits for all of
// its messages.
func (c *Client) Ensemble(ctx context.Context) (*pylon.Ensemble, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	if err := c.Request(ctx, pylon.EnsembleInformation); err != nil {
		return nil, err
	}
	var e pylon.Ensemble
	pending := make(map[uint32]bool)
	for _, msg := range e.Messages() {
		pending[msg.ID()] = true
	}
	for len(pending) > 0 {
		f, err := c.Bus.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return &e, fmt.Errorf("%w: %d messages missing", ErrIncomplete, len(pending))
			}
			return nil, err
		}
		if !f.Extended || !pending[f.ID] {
			continue
		}
		if _, err := e.Set(f.ID, f.Payload()); err != nil {
			return nil, err
		}
		delete(pending, f.ID)
	}
	return &e, nil
}

// Equipment requests the system equipment information and returns the
// replies received before the timeout. A pack not answering this
// request yields no messages and no error.
func (c *Client) Equipment(ctx context.Context) ([]pylon.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	if err := c.Request(ctx, pylon.SystemEquipmentInformation); err != nil {
		return nil, err
	}
	var replies []pylon.Message
	for len(replies) < 2 {
		f, err := c.Bus.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return replies, err
		}
		if !f.Extended || (f.ID != pylon.EquipmentInfo1ID && f.ID != pylon.EquipmentInfo2ID) {
			continue
		}
		msg, err := pylon.Decode(f.ID, f.Payload())
		if err != nil {
			return replies, err
		}
		replies = append(replies, msg)
	}
	return replies, nil
}

// Modules listens to telemetry until a complete snapshot of every
// module in the pack is seen or the timeout expires. Modules without
// a complete snapshot are left out of the result.
func (c *Client) Modules(ctx context.Context, modules int, timeout time.Duration) (map[int]telemetry.ModuleSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	asm := telemetry.NewAssembler(modules)
	snaps := make(map[int]telemetry.ModuleSnapshot)
	filter := can.ByMask(telemetry.BaseAddress, telemetry.BaseMask)
	for len(snaps) < modules {
		f, err := can.ReceiveMatching(ctx, c.Bus, filter)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return snaps, err
		}
		module, complete, err := asm.Apply(f.ID, f.Payload())
		if err != nil {
			glog.V(1).Infof("telemetry %08x: %v", f.ID, err)
			continue
		}
		if complete {
			snaps[module] = asm.Snapshot(module)
		}
	}
	return snaps, nil
}
