package pl455

import "errors"

// ErrCRC indicates a response frame failed the checksum.
var ErrCRC = errors.New("response CRC mismatch")

type recvState int

const (
	recvIdle recvState = iota
	recvData
)

// Receiver reassembles response frames one byte at a time.
//
// A response starts with a byte whose bit 7 is clear and whose low 7 bits
// are the data length minus one; it is followed by the data bytes and a
// 2-byte CRC. Bytes that can't start a response while idle are dropped.
type Receiver struct {
	state recvState
	buf   []byte
	want  int
}

// Receiving indicates a response is partially received.
func (r *Receiver) Receiving() bool {
	return r.state == recvData
}

// Reset drops any partial frame.
func (r *Receiver) Reset() {
	r.state, r.buf, r.want = recvIdle, nil, 0
}

// Parse consumes one byte. It returns a Response once a frame is complete
// and its CRC checks; ErrCRC if the completed frame is corrupt.
func (r *Receiver) Parse(b byte) (*Response, error) {
	switch r.state {
	case recvIdle:
		if b&initFrameCmd != 0 {
			return nil, nil
		}
		// length byte + data + CRC
		r.want = int(b&respLengthMask) + 1 + 3
		r.buf = make([]byte, 0, r.want)
		r.buf = append(r.buf, b)
		r.state = recvData
	case recvData:
		r.buf = append(r.buf, b)
		if len(r.buf) < r.want {
			return nil, nil
		}
		frame := r.buf
		r.Reset()
		if !ValidCRC(frame) {
			return nil, ErrCRC
		}
		return &Response{Frame: frame}, nil
	}
	return nil, nil
}
