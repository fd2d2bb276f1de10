package monitor

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/bms.go/pkg/pylon"
	"github.com/robotalks/bms.go/pkg/telemetry"
)

// HTTP paths
const (
	PathMetrics = "/metrics"
	PathStream  = "/ws"
)

// Monitor serves metrics and the telemetry stream of a node.
type Monitor struct {
	Addr    string
	Metrics *Metrics
	Stream  *Stream

	listener net.Listener
}

// New creates a Monitor listening on addr.
func New(addr, node string) *Monitor {
	return &Monitor{
		Addr:    addr,
		Metrics: NewMetrics(),
		Stream:  NewStream(node),
	}
}

// ModuleUpdated implements node.Observer.
func (m *Monitor) ModuleUpdated(module int, snap *telemetry.ModuleSnapshot, now time.Time) {
	m.Metrics.ModuleUpdated(module, snap, now)
	m.Stream.ModuleUpdated(module, snap, now)
}

// PackEvaluated implements node.Observer.
func (m *Monitor) PackEvaluated(ensemble *pylon.Ensemble, now time.Time) {
	m.Metrics.PackEvaluated(ensemble, now)
	m.Stream.PackEvaluated(ensemble, now)
}

// Mux returns the HTTP handlers.
func (m *Monitor) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(PathMetrics, m.Metrics.Handler())
	mux.Handle(PathStream, m.Stream.Handler())
	return mux
}

// Listen opens the listener ahead of Run, mostly for picking a free
// port with ":0".
func (m *Monitor) Listen() (net.Addr, error) {
	if m.listener == nil {
		l, err := net.Listen("tcp", m.Addr)
		if err != nil {
			return nil, err
		}
		m.listener = l
	}
	return m.listener.Addr(), nil
}

// Name implements framework.Named.
func (m *Monitor) Name() string {
	return "monitor"
}

// Run implements framework.Runnable.
func (m *Monitor) Run(ctx context.Context) error {
	if _, err := m.Listen(); err != nil {
		return err
	}
	server := &http.Server{Handler: m.Mux()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(m.listener)
	}()
	glog.Infof("monitor listening on %s", m.listener.Addr())
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	return ctx.Err()
}
