// +build linux

package can

import (
	"context"
	"sync"

	brcan "github.com/brutella/can"
	"github.com/golang/glog"

	fx "github.com/robotalks/bms.go/pkg/framework"
)

// can_id flags of struct can_frame
const (
	canEffFlag uint32 = 0x80000000
	canRtrFlag uint32 = 0x40000000
)

// Defaults for SocketBus
const (
	DefaultSendRetries = 5
	DefaultSocketQueue = 1024
)

// SocketBus is a Linux SocketCAN bus. Run must be running for frames
// to be received.
type SocketBus struct {
	Retries int

	iface  string
	bus    *brcan.Bus
	rx     chan Frame
	once   sync.Once
	closed chan struct{}
}

// OpenSocket opens a SocketCAN interface, e.g. can0.
func OpenSocket(iface string) (*SocketBus, error) {
	bus, err := brcan.NewBusForInterfaceWithName(iface)
	if err != nil {
		return nil, err
	}
	b := &SocketBus{
		Retries: DefaultSendRetries,
		iface:   iface,
		bus:     bus,
		rx:      make(chan Frame, DefaultSocketQueue),
		closed:  make(chan struct{}),
	}
	bus.SubscribeFunc(b.handleFrame)
	return b, nil
}

// Name implements framework.Named.
func (b *SocketBus) Name() string {
	return "socketcan:" + b.iface
}

// Run reads the socket until ctx is done.
func (b *SocketBus) Run(ctx context.Context) error {
	return fx.RunWithContextCancel(ctx, func() { b.Close() }, b.bus.ConnectAndPublish)
}

func (b *SocketBus) handleFrame(f brcan.Frame) {
	frame := Frame{
		ID:  f.ID,
		Len: f.Length,
	}
	if frame.Len > MaxLen {
		frame.Len = MaxLen
	}
	copy(frame.Data[:], f.Data[:])
	if f.ID&canEffFlag != 0 {
		frame.Extended, frame.ID = true, f.ID&MaxExtID
	} else {
		frame.ID = f.ID & MaxStdID
	}
	frame.RTR = f.ID&canRtrFlag != 0
	select {
	case b.rx <- frame:
	default:
		glog.Warningf("%s: receive queue full, dropped %s", b.Name(), frame)
	}
}

// Send implements Bus. A failed write is retried up to Retries times.
func (b *SocketBus) Send(ctx context.Context, frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	out := brcan.Frame{ID: frame.ID, Length: frame.Len, Data: frame.Data}
	if frame.Extended {
		out.ID |= canEffFlag
	}
	if frame.RTR {
		out.ID |= canRtrFlag
	}
	var err error
	for attempt := 0; attempt < b.Retries || attempt == 0; attempt++ {
		select {
		case <-b.closed:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err = b.bus.Publish(out); err == nil {
			return nil
		}
		glog.Errorf("%s: send %s failed: %v", b.Name(), frame, err)
	}
	return err
}

// Receive implements Bus.
func (b *SocketBus) Receive(ctx context.Context) (Frame, error) {
	select {
	case f := <-b.rx:
		return f, nil
	case <-b.closed:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close implements Bus.
func (b *SocketBus) Close() (err error) {
	b.once.Do(func() {
		close(b.closed)
		err = b.bus.Disconnect()
	})
	return
}
