package pl455

import "github.com/sigurn/crc16"

// The chip uses the reflected 0x8005 polynomial with zero init and no
// final xor, which is CRC-16/ARC.
var crcTable = crc16.MakeTable(crc16.CRC16_ARC)

// CRC16 computes the frame checksum.
func CRC16(buf []byte) uint16 {
	return crc16.Checksum(buf, crcTable)
}

// AppendCRC appends the checksum of frame, low byte first.
func AppendCRC(frame []byte) []byte {
	crc := CRC16(frame)
	return append(frame, byte(crc), byte(crc>>8))
}

// ValidCRC reports whether a complete frame, including its trailing
// checksum, is intact.
func ValidCRC(frame []byte) bool {
	return len(frame) > 2 && CRC16(frame) == 0
}
