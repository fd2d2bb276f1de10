package pl455

import (
	"errors"
	"fmt"
)

// Scope is the addressing breadth of a command.
type Scope byte

// Scopes
const (
	ScopeSingle    Scope = 0
	ScopeGroup     Scope = 1
	ScopeBroadcast Scope = 3
)

func (s Scope) String() string {
	switch s {
	case ScopeSingle:
		return "single"
	case ScopeGroup:
		return "group"
	case ScopeBroadcast:
		return "broadcast"
	}
	return fmt.Sprintf("scope(%d)", byte(s))
}

// Direction of a command.
type Direction byte

// Directions
const (
	DirRead  Direction = 0
	DirWrite Direction = 1
)

// AddrWidth selects 8-bit or 16-bit register addresses.
type AddrWidth byte

// Address widths
const (
	Addr8  AddrWidth = 0
	Addr16 AddrWidth = 1
)

// Init byte layout
const (
	initFrameCmd    byte = 0x80
	initAddrWidth   byte = 0x08
	initReqShift         = 4
	initSizeMask    byte = 0x07
	respLengthMask  byte = 0x7f
	maxWriteData         = 8
	maxReadResponse      = 128
)

var (
	// ErrInvalidDataSize indicates a payload size the init byte can't encode.
	ErrInvalidDataSize = errors.New("invalid data size")
	// ErrInvalidScope indicates an unknown scope.
	ErrInvalidScope = errors.New("invalid scope")
	// ErrInvalidCount indicates a read request for 0 or more than 128 bytes.
	ErrInvalidCount = errors.New("invalid byte count")
)

// SizeCode maps a payload size to the 3-bit init byte code.
// Sizes 0 to 6 map to themselves, 8 maps to 7; 7 and >8 are invalid.
func SizeCode(size int) (byte, error) {
	switch {
	case size >= 0 && size <= 6:
		return byte(size), nil
	case size == 8:
		return 7, nil
	}
	return 0, fmt.Errorf("%w: %d bytes", ErrInvalidDataSize, size)
}

// InitByte builds the initialization byte of a command frame.
func InitByte(dir Direction, scope Scope, size int, width AddrWidth) (byte, error) {
	code, err := SizeCode(size)
	if err != nil {
		return 0, err
	}
	switch scope {
	case ScopeSingle, ScopeGroup, ScopeBroadcast:
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidScope, byte(scope))
	}
	b := initFrameCmd | code | (byte(dir)|byte(scope)<<1)<<initReqShift
	if width == Addr16 {
		b |= initAddrWidth
	}
	return b, nil
}

// Codec encodes command frames for one address width.
type Codec struct {
	Width AddrWidth
}

func (c Codec) appendRegister(frame []byte, reg byte) []byte {
	if c.Width == Addr16 {
		frame = append(frame, 0)
	}
	return append(frame, reg)
}

// EncodeWrite encodes a register write. data is in logical order, the
// frame carries it reversed.
func (c Codec) EncodeWrite(scope Scope, dev, reg byte, data []byte) ([]byte, error) {
	if len(data) > maxWriteData {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidDataSize, len(data))
	}
	ib, err := InitByte(DirWrite, scope, len(data), c.Width)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(data)+6)
	frame = append(frame, ib)
	if scope != ScopeBroadcast {
		frame = append(frame, dev)
	}
	frame = c.appendRegister(frame, reg)
	for i := len(data) - 1; i >= 0; i-- {
		frame = append(frame, data[i])
	}
	return AppendCRC(frame), nil
}

// EncodeRead encodes a read request for count bytes. For group scope
// dev is the highest device address in the group; for broadcast it is
// the highest device address in the chain.
func (c Codec) EncodeRead(scope Scope, dev, group, reg byte, count int) ([]byte, error) {
	if count < 1 || count > maxReadResponse {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	ib, err := InitByte(DirRead, scope, 1, c.Width)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, 8)
	frame = append(frame, ib)
	switch scope {
	case ScopeSingle:
		frame = append(frame, dev)
		frame = c.appendRegister(frame, reg)
	case ScopeGroup:
		frame = append(frame, group)
		frame = c.appendRegister(frame, reg)
		frame = append(frame, dev)
	case ScopeBroadcast:
		frame = c.appendRegister(frame, reg)
		frame = append(frame, dev)
	}
	frame = append(frame, byte(count-1))
	return AppendCRC(frame), nil
}

// Response is a complete, CRC-checked response frame.
type Response struct {
	Frame []byte
}

// Data returns the data bytes between the length byte and the CRC.
func (r *Response) Data() []byte {
	if len(r.Frame) < 3 {
		return nil
	}
	return r.Frame[1 : len(r.Frame)-2]
}

// Command is the decoded initialization byte of a command frame.
type Command struct {
	Dir   Direction
	Scope Scope
	Size  int
	Width AddrWidth
}

// ParseInit decodes a command initialization byte. It returns false for
// response bytes (bit 7 clear).
func ParseInit(b byte) (cmd Command, ok bool) {
	if b&initFrameCmd == 0 {
		return cmd, false
	}
	cmd.Size = int(b & initSizeMask)
	if cmd.Size == 7 {
		cmd.Size = 8
	}
	if b&initAddrWidth != 0 {
		cmd.Width = Addr16
	}
	req := (b >> initReqShift) & 0x07
	cmd.Dir = Direction(req & 1)
	cmd.Scope = Scope(req >> 1)
	return cmd, true
}
