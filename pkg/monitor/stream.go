package monitor

import (
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	fx "github.com/robotalks/bms.go/pkg/framework"
	"github.com/robotalks/bms.go/pkg/msgs"
	"github.com/robotalks/bms.go/pkg/pylon"
	"github.com/robotalks/bms.go/pkg/telemetry"
)

// DefaultClientQueueSize is the number of messages buffered per client.
const DefaultClientQueueSize = 64

// Stream broadcasts telemetry to websocket clients as encoded Typed
// messages, one per binary frame. It implements node.Observer. Slow
// clients lose messages instead of blocking the loop.
type Stream struct {
	Node      string
	QueueSize int

	lock    sync.Mutex
	clients map[chan []byte]struct{}
	dropped int
}

// NewStream creates a Stream.
func NewStream(node string) *Stream {
	return &Stream{Node: node, QueueSize: DefaultClientQueueSize}
}

// ModuleUpdated implements node.Observer.
func (s *Stream) ModuleUpdated(module int, snap *telemetry.ModuleSnapshot, now time.Time) {
	s.broadcast(msgs.NewModuleSnapshot(s.Node, module, snap, now))
}

// PackEvaluated implements node.Observer.
func (s *Stream) PackEvaluated(ensemble *pylon.Ensemble, now time.Time) {
	s.broadcast(msgs.NewPackStatus(s.Node, ensemble, now))
}

// Clients returns the number of connected clients.
func (s *Stream) Clients() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.clients)
}

// Dropped returns the number of messages not delivered to slow clients.
func (s *Stream) Dropped() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.dropped
}

func (s *Stream) broadcast(msg fx.Message) {
	payload, err := msgs.Encode(msg)
	if err != nil {
		glog.Errorf("stream encode: %v", err)
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	for ch := range s.clients {
		select {
		case ch <- payload:
		default:
			s.dropped++
		}
	}
}

func (s *Stream) subscribe() chan []byte {
	size := s.QueueSize
	if size <= 0 {
		size = DefaultClientQueueSize
	}
	ch := make(chan []byte, size)
	s.lock.Lock()
	if s.clients == nil {
		s.clients = make(map[chan []byte]struct{})
	}
	s.clients[ch] = struct{}{}
	s.lock.Unlock()
	return ch
}

func (s *Stream) unsubscribe(ch chan []byte) {
	s.lock.Lock()
	delete(s.clients, ch)
	s.lock.Unlock()
}

// Handler returns the websocket handler.
func (s *Stream) Handler() websocket.Handler {
	return websocket.Handler(s.serve)
}

func (s *Stream) serve(conn *websocket.Conn) {
	defer conn.Close()
	ch := s.subscribe()
	defer s.unsubscribe(ch)
	glog.V(1).Infof("stream client %s connected", conn.Request().RemoteAddr)

	// the client never sends, a receive error means it is gone
	closed := make(chan struct{})
	go func() {
		var discard []byte
		for websocket.Message.Receive(conn, &discard) == nil {
		}
		close(closed)
	}()

	for {
		select {
		case payload := <-ch:
			if err := websocket.Message.Send(conn, payload); err != nil {
				glog.V(1).Infof("stream client %s: %v", conn.Request().RemoteAddr, err)
				return
			}
		case <-closed:
			glog.V(1).Infof("stream client %s disconnected", conn.Request().RemoteAddr)
			return
		}
	}
}
