package can

import "context"

// Bus sends and receives frames. Implementations are safe for
// concurrent use.
type Bus interface {
	// Send transmits a frame, blocking until it is queued or ctx is done.
	Send(ctx context.Context, frame Frame) error
	// Receive blocks until the next frame or ctx is done.
	Receive(ctx context.Context) (Frame, error)
	// Close releases the bus. Blocked calls return ErrClosed.
	Close() error
}

// FrameFilter selects frames.
type FrameFilter func(Frame) bool

// Any matches every frame.
func Any() FrameFilter {
	return func(Frame) bool { return true }
}

// ByID matches an exact extended identifier.
func ByID(id uint32) FrameFilter {
	return func(f Frame) bool { return f.Extended && f.ID == id }
}

// ByMask matches extended identifiers with (ID & mask) == (id & mask).
func ByMask(id, mask uint32) FrameFilter {
	want := id & mask
	return func(f Frame) bool { return f.Extended && f.ID&mask == want }
}

// Or matches when any filter matches.
func Or(filters ...FrameFilter) FrameFilter {
	return func(f Frame) bool {
		for _, filter := range filters {
			if filter(f) {
				return true
			}
		}
		return false
	}
}

// ReceiveMatching receives until a frame matches filter.
func ReceiveMatching(ctx context.Context, bus Bus, filter FrameFilter) (Frame, error) {
	for {
		f, err := bus.Receive(ctx)
		if err != nil || filter == nil || filter(f) {
			return f, err
		}
	}
}
