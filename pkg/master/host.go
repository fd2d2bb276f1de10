package master

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/bms.go/pkg/framework"
	"github.com/robotalks/bms.go/pkg/pylon"
)

// DefaultRequestQueueSize is the number of pending host requests.
const DefaultRequestQueueSize = 4

// Sender transmits one host message.
type Sender interface {
	Send(ctx context.Context, id uint32, payload []byte) error
}

// SenderFunc is the func form of Sender.
type SenderFunc func(ctx context.Context, id uint32, payload []byte) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, id uint32, payload []byte) error {
	return f(ctx, id, payload)
}

// HostHandler queues host requests and answers them from the Engine.
type HostHandler struct {
	Engine *Engine
	Sender Sender

	requests chan pylon.Request
}

// NewHostHandler creates a HostHandler with a queue of size pending
// requests.
func NewHostHandler(engine *Engine, sender Sender, size int) *HostHandler {
	if size <= 0 {
		size = DefaultRequestQueueSize
	}
	return &HostHandler{
		Engine:   engine,
		Sender:   sender,
		requests: make(chan pylon.Request, size),
	}
}

// Enqueue adds a request without blocking. It returns false when the
// queue is full and the request is dropped.
func (h *HostHandler) Enqueue(req pylon.Request) bool {
	select {
	case h.requests <- req:
		return true
	default:
		glog.Warningf("Host request queue full, dropped %v", req.Type)
		return false
	}
}

// Pending returns the number of queued requests.
func (h *HostHandler) Pending() int {
	return len(h.requests)
}

// Drain handles all queued requests without blocking.
func (h *HostHandler) Drain(ctx context.Context, now time.Time) error {
	var errs fx.AggregatedError
	for {
		select {
		case req := <-h.requests:
			errs.Add(h.Handle(ctx, req, now))
		default:
			return errs.Aggregate()
		}
	}
}

// Handle answers a single request.
func (h *HostHandler) Handle(ctx context.Context, req pylon.Request, now time.Time) error {
	switch req.Type {
	case pylon.EnsembleInformation:
		glog.V(2).Info("Host requested ensemble information")
		h.Engine.Process(now)
		if !h.Engine.AllInitialized() {
			return nil
		}
		return h.SendEnsemble(ctx)
	case pylon.SystemEquipmentInformation:
		glog.Info("Host requested system equipment information")
		return nil
	}
	glog.Warningf("Received unknown host request type: %d", uint8(req.Type))
	return nil
}

// SendEnsemble transmits the nine ensemble messages in order. A failed
// send doesn't stop the rest.
func (h *HostHandler) SendEnsemble(ctx context.Context) error {
	ensemble := h.Engine.Ensemble()
	var errs fx.AggregatedError
	for _, msg := range ensemble.Messages() {
		payload, err := msg.MarshalBinary()
		if err != nil {
			errs.Add(err)
			continue
		}
		if err = h.Sender.Send(ctx, msg.ID(), payload); err != nil {
			errs.Add(fmt.Errorf("send %04x: %w", msg.ID(), err))
		}
	}
	if errs.Len() == 0 {
		glog.V(2).Info("Finished sending ensemble information")
	}
	return errs.Aggregate()
}
