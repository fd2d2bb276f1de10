package can

import (
	"context"
	"sync"
)

// DefaultLoopbackQueue is the receive queue length of a loopback endpoint.
const DefaultLoopbackQueue = 256

// LoopbackBus is an in-memory bus. Frames sent by one endpoint are
// delivered to all other endpoints of the same bus.
type LoopbackBus struct {
	lock      sync.RWMutex
	closed    bool
	endpoints map[*loopEndpoint]struct{}
}

// NewLoopbackBus creates a LoopbackBus.
func NewLoopbackBus() *LoopbackBus {
	return &LoopbackBus{endpoints: make(map[*loopEndpoint]struct{})}
}

// Open attaches a new endpoint.
func (b *LoopbackBus) Open() Bus {
	ep := &loopEndpoint{
		bus:    b,
		ch:     make(chan Frame, DefaultLoopbackQueue),
		closed: make(chan struct{}),
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		close(ep.closed)
		return ep
	}
	b.endpoints[ep] = struct{}{}
	return ep
}

// Close detaches and closes all endpoints.
func (b *LoopbackBus) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.closed {
		b.closed = true
		for ep := range b.endpoints {
			ep.shutdown()
		}
		b.endpoints = nil
	}
	return nil
}

type loopEndpoint struct {
	bus    *LoopbackBus
	ch     chan Frame
	once   sync.Once
	closed chan struct{}
}

func (e *loopEndpoint) Send(ctx context.Context, frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	select {
	case <-e.closed:
		return ErrClosed
	default:
	}
	e.bus.lock.RLock()
	targets := make([]*loopEndpoint, 0, len(e.bus.endpoints))
	for ep := range e.bus.endpoints {
		if ep != e {
			targets = append(targets, ep)
		}
	}
	e.bus.lock.RUnlock()
	for _, t := range targets {
		select {
		case t.ch <- frame:
		case <-t.closed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *loopEndpoint) Receive(ctx context.Context) (Frame, error) {
	select {
	case f := <-e.ch:
		return f, nil
	case <-e.closed:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (e *loopEndpoint) Close() error {
	e.bus.lock.Lock()
	defer e.bus.lock.Unlock()
	e.shutdown()
	delete(e.bus.endpoints, e)
	return nil
}

func (e *loopEndpoint) shutdown() {
	e.once.Do(func() { close(e.closed) })
}
