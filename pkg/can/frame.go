// Package can provides CAN frames, a bus abstraction, an in-memory
// loopback bus and a SocketCAN bus.
package can

import (
	"errors"
	"fmt"
)

// Identifier limits
const (
	MaxStdID uint32 = 0x7FF
	MaxExtID uint32 = 0x1FFFFFFF
	MaxLen          = 8
)

var (
	// ErrClosed indicates the bus has been closed.
	ErrClosed = errors.New("can: closed")
	// ErrInvalidID indicates an identifier too large for its format.
	ErrInvalidID = errors.New("can: invalid identifier")
	// ErrInvalidLen indicates more than 8 data bytes.
	ErrInvalidLen = errors.New("can: invalid data length")
)

// Frame is a classical CAN frame.
type Frame struct {
	ID       uint32
	Extended bool
	RTR      bool
	Len      uint8
	Data     [MaxLen]byte
}

// NewFrame creates an extended data frame.
func NewFrame(id uint32, data []byte) (Frame, error) {
	f := Frame{ID: id, Extended: true}
	if len(data) > MaxLen {
		return f, fmt.Errorf("%w: %d", ErrInvalidLen, len(data))
	}
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	return f, f.Validate()
}

// Validate checks identifier and length.
func (f Frame) Validate() error {
	if f.Len > MaxLen {
		return ErrInvalidLen
	}
	max := MaxStdID
	if f.Extended {
		max = MaxExtID
	}
	if f.ID > max {
		return fmt.Errorf("%w: %x", ErrInvalidID, f.ID)
	}
	return nil
}

// Payload returns the data bytes.
func (f *Frame) Payload() []byte {
	return f.Data[:f.Len]
}

func (f Frame) String() string {
	kind := "std"
	if f.Extended {
		kind = "ext"
	}
	if f.RTR {
		return fmt.Sprintf("%08x %s rtr", f.ID, kind)
	}
	return fmt.Sprintf("%08x %s [%d] % x", f.ID, kind, f.Len, f.Data[:f.Len])
}
