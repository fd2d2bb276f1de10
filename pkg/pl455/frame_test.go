package pl455

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC16(t *testing.T) {
	require.Equal(t, uint16(0xBB3D), CRC16([]byte("123456789")))
	require.Equal(t, []byte{0x00, 0x01, 0xC1, 0xC0}, AppendCRC([]byte{0x00, 0x01}))
	require.True(t, ValidCRC([]byte{0x00, 0x01, 0xC1, 0xC0}))
	require.False(t, ValidCRC([]byte{0x00, 0x01, 0xC1, 0xC1}))
	require.False(t, ValidCRC([]byte{0x00, 0x00}))
}

func TestSizeCode(t *testing.T) {
	for size := 0; size <= 6; size++ {
		code, err := SizeCode(size)
		require.NoError(t, err)
		require.Equal(t, byte(size), code)
	}
	code, err := SizeCode(8)
	require.NoError(t, err)
	require.Equal(t, byte(7), code)
	for _, size := range []int{7, 9, -1} {
		_, err = SizeCode(size)
		require.True(t, errors.Is(err, ErrInvalidDataSize), "size %d", size)
	}
}

func TestEncodeWrite(t *testing.T) {
	testCases := []struct {
		name   string
		width  AddrWidth
		scope  Scope
		dev    byte
		reg    byte
		data   []byte
		expect []byte
	}{
		{"broadcast comm config", Addr8, ScopeBroadcast, 0, 0x10, []byte{0xE0, 0x10}, []byte{0xF2, 0x10, 0x10, 0xE0, 0x3F, 0x35}},
		{"single balance enable", Addr8, ScopeSingle, 1, 0x14, []byte{0x03, 0x80}, []byte{0x92, 0x01, 0x14, 0x80, 0x03, 0xD9, 0xE4}},
		{"16-bit single balance enable", Addr16, ScopeSingle, 1, 0x14, []byte{0x03, 0x80}, []byte{0x9A, 0x01, 0x00, 0x14, 0x80, 0x03, 0x41, 0xFF}},
		{"start auto addressing", Addr8, ScopeBroadcast, 0, 0x0C, []byte{0x08}, []byte{0xF1, 0x0C, 0x08, 0x55, 0x35}},
		{"balance off", Addr8, ScopeBroadcast, 0, 0x14, []byte{0, 0}, []byte{0xF2, 0x14, 0x00, 0x00, 0x72, 0xBC}},
		{"assign address 0", Addr8, ScopeBroadcast, 0, 0x0A, []byte{0}, []byte{0xF1, 0x0A, 0x00, 0x57, 0x53}},
		{"assign address 1", Addr8, ScopeBroadcast, 0, 0x0A, []byte{1}, []byte{0xF1, 0x0A, 0x01, 0x96, 0x93}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := Codec{Width: tc.width}.EncodeWrite(tc.scope, tc.dev, tc.reg, tc.data)
			require.NoError(t, err)
			require.Equal(t, tc.expect, frame)
			require.Equal(t, uint16(0), CRC16(frame))
		})
	}
}

func TestEncodeWriteInvalid(t *testing.T) {
	var c Codec
	_, err := c.EncodeWrite(ScopeSingle, 0, 0x10, make([]byte, 7))
	require.True(t, errors.Is(err, ErrInvalidDataSize))
	_, err = c.EncodeWrite(ScopeSingle, 0, 0x10, make([]byte, 9))
	require.True(t, errors.Is(err, ErrInvalidDataSize))
	_, err = c.EncodeWrite(Scope(2), 0, 0x10, nil)
	require.True(t, errors.Is(err, ErrInvalidScope))

	frame, err := c.EncodeWrite(ScopeGroup, 2, 0x10, make([]byte, 8))
	require.NoError(t, err)
	require.Equal(t, byte(0xB7), frame[0])
	require.Len(t, frame, 1+1+1+8+2)
}

func TestEncodeRead(t *testing.T) {
	testCases := []struct {
		name   string
		scope  Scope
		dev    byte
		group  byte
		reg    byte
		count  int
		expect []byte
	}{
		{"voltage block", ScopeSingle, 0, 0, 0x02, 1, []byte{0x81, 0x00, 0x02, 0x00, 0x29, 0x5C}},
		{"address readback", ScopeSingle, 1, 0, 0x0A, 1, []byte{0x81, 0x01, 0x0A, 0x00, 0x7F, 0x5C}},
		{"group", ScopeGroup, 3, 2, 0x02, 4, []byte{0xA1, 0x02, 0x02, 0x03, 0x03, 0x5D, 0x50}},
		{"broadcast", ScopeBroadcast, 1, 0, 0x0A, 1, []byte{0xE1, 0x0A, 0x01, 0x00, 0x17, 0xAE}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := Codec{}.EncodeRead(tc.scope, tc.dev, tc.group, tc.reg, tc.count)
			require.NoError(t, err)
			require.Equal(t, tc.expect, frame)
			require.True(t, ValidCRC(frame))
		})
	}
	_, err := Codec{}.EncodeRead(ScopeSingle, 0, 0, 0x02, 0)
	require.True(t, errors.Is(err, ErrInvalidCount))
	_, err = Codec{}.EncodeRead(ScopeSingle, 0, 0, 0x02, 129)
	require.True(t, errors.Is(err, ErrInvalidCount))
}

func TestParseInit(t *testing.T) {
	cmd, ok := ParseInit(0xF2)
	require.True(t, ok)
	require.Equal(t, Command{Dir: DirWrite, Scope: ScopeBroadcast, Size: 2, Width: Addr8}, cmd)
	cmd, ok = ParseInit(0x9F)
	require.True(t, ok)
	require.Equal(t, Command{Dir: DirWrite, Scope: ScopeSingle, Size: 8, Width: Addr16}, cmd)
	cmd, ok = ParseInit(0xA1)
	require.True(t, ok)
	require.Equal(t, Command{Dir: DirRead, Scope: ScopeGroup, Size: 1, Width: Addr8}, cmd)
	_, ok = ParseInit(0x01)
	require.False(t, ok)
}

func feed(r *Receiver, in []byte) (resps []*Response, errs []error) {
	for _, b := range in {
		resp, err := r.Parse(b)
		if err != nil {
			errs = append(errs, err)
		}
		if resp != nil {
			resps = append(resps, resp)
		}
	}
	return
}

func TestReceiver(t *testing.T) {
	var r Receiver
	resps, errs := feed(&r, []byte{0x00, 0x01, 0xC1, 0xC0})
	require.Empty(t, errs)
	require.Len(t, resps, 1)
	require.Equal(t, []byte{0x01}, resps[0].Data())
	require.False(t, r.Receiving())

	// command bytes can't start a response
	resps, errs = feed(&r, []byte{0xF2, 0x81, 0x00, 0x00})
	require.Empty(t, errs)
	require.Empty(t, resps)
	require.True(t, r.Receiving())
	r.Reset()

	resps, errs = feed(&r, []byte{0x00, 0x01, 0xC1, 0xC1})
	require.Empty(t, resps)
	require.Len(t, errs, 1)
	require.True(t, errors.Is(errs[0], ErrCRC))
	require.False(t, r.Receiving())

	// recovers on the next frame
	resps, errs = feed(&r, response(0x02, 0x03))
	require.Empty(t, errs)
	require.Len(t, resps, 1)
	require.Equal(t, []byte{0x02, 0x03}, resps[0].Data())
}
