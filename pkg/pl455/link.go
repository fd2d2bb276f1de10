package pl455

import (
	"context"
	"io"
	"time"

	"github.com/golang/glog"
)

// DefaultRxBuffer is the number of received bytes buffered between the
// reader goroutine and Poll.
const DefaultRxBuffer = 1024

// Link is the host end of the chip UART. Commands are written directly;
// received bytes are pumped by Run on a separate goroutine and consumed
// by Poll on the control loop, which is the only goroutine touching the
// response state.
type Link struct {
	Codec Codec

	port io.ReadWriter
	rx   chan byte

	recv    Receiver
	waiting bool
	sentAt  time.Time
}

// NewLink creates a Link over a port.
func NewLink(port io.ReadWriter, codec Codec) *Link {
	return &Link{
		Codec: codec,
		port:  port,
		rx:    make(chan byte, DefaultRxBuffer),
	}
}

// Name implements framework.Named.
func (l *Link) Name() string {
	return "pl455-rx"
}

// Run reads the port until ctx is done or the port fails.
// A port with read timeouts should return (0, nil) on timeout.
func (l *Link) Run(ctx context.Context) error {
	buf := make([]byte, 64)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := l.port.Read(buf)
		for _, b := range buf[:n] {
			select {
			case l.rx <- b:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			return err
		}
	}
}

func (l *Link) send(frame []byte) error {
	if glog.V(4) {
		glog.Infof("TX % x", frame)
	}
	_, err := l.port.Write(frame)
	return err
}

// Write sends a register write. No response is expected.
func (l *Link) Write(scope Scope, dev, reg byte, data ...byte) error {
	frame, err := l.Codec.EncodeWrite(scope, dev, reg, data)
	if err != nil {
		return err
	}
	return l.send(frame)
}

// Request sends a read request and starts waiting for its response.
// A previous exchange still in flight is abandoned.
func (l *Link) Request(scope Scope, dev, group, reg byte, count int, now time.Time) error {
	frame, err := l.Codec.EncodeRead(scope, dev, group, reg, count)
	if err != nil {
		return err
	}
	l.recv.Reset()
	l.waiting = false
	if err = l.send(frame); err != nil {
		return err
	}
	l.waiting, l.sentAt = true, now
	return nil
}

// Poll consumes all received bytes without blocking and returns the
// response completed by them, if any. Bytes arriving while no response
// is awaited are noise and dropped.
func (l *Link) Poll() *Response {
	var resp *Response
	for {
		select {
		case b := <-l.rx:
			if !l.waiting {
				glog.V(4).Infof("RX noise %02x", b)
				continue
			}
			r, err := l.recv.Parse(b)
			if err != nil {
				glog.Errorf("pl455: %v", err)
				continue
			}
			if r != nil {
				if glog.V(4) {
					glog.Infof("RX % x", r.Frame)
				}
				l.waiting, resp = false, r
			}
		default:
			return resp
		}
	}
}

// Waiting indicates a response is outstanding.
func (l *Link) Waiting() bool {
	return l.waiting
}

// Elapsed returns the time since the outstanding request was sent.
func (l *Link) Elapsed(now time.Time) time.Duration {
	return now.Sub(l.sentAt)
}

// Abandon gives up the outstanding exchange.
func (l *Link) Abandon() {
	l.waiting = false
	l.recv.Reset()
}
