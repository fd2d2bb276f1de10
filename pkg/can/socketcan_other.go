// +build !linux

package can

import (
	"context"
	"errors"
)

// ErrUnsupported indicates SocketCAN is not available on this platform.
var ErrUnsupported = errors.New("can: socketcan requires linux")

// SocketBus is only available on Linux.
type SocketBus struct{}

// OpenSocket always fails outside Linux.
func OpenSocket(iface string) (*SocketBus, error) {
	return nil, ErrUnsupported
}

// Name implements framework.Named.
func (b *SocketBus) Name() string { return "socketcan" }

// Run implements framework.Runnable.
func (b *SocketBus) Run(ctx context.Context) error { return ErrUnsupported }

// Send implements Bus.
func (b *SocketBus) Send(ctx context.Context, frame Frame) error { return ErrUnsupported }

// Receive implements Bus.
func (b *SocketBus) Receive(ctx context.Context) (Frame, error) { return Frame{}, ErrUnsupported }

// Close implements Bus.
func (b *SocketBus) Close() error { return nil }
