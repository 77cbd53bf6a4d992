package header

import (
	"encoding/binary"
)

// Checksum calculates the checksum (as defined in RFC 1071) of the bytes in
// the given byte array, folding it into the initial value
func Checksum(buf []byte, initial uint16) uint16 {
	v := uint32(initial)

	l := len(buf)
	if l&1 != 0 {
		l--
		v += uint32(buf[l]) << 8
	}

	for i := 0; i < l; i += 2 {
		v += (uint32(buf[i]) << 8) + uint32(buf[i+1])
	}

	return ChecksumCombine(uint16(v), uint16(v>>16))
}

// ChecksumCombine combines the two uint16 to form their checksum. This is done
// by adding them and the carry
func ChecksumCombine(a, b uint16) uint16 {
	v := uint32(a) + uint32(b)
	return uint16(v + v>>16)
}

// PseudoHeaderChecksum calculates the pseudo-header checksum for the given
// transport protocol, addresses and total transport length
func PseudoHeaderChecksum(protocol uint8, srcAddr, dstAddr string, totalLen uint16) uint16 {
	xsum := Checksum([]byte(srcAddr), 0)
	xsum = Checksum([]byte(dstAddr), xsum)

	var l [4]byte
	l[1] = protocol
	binary.BigEndian.PutUint16(l[2:], totalLen)
	return Checksum(l[:], xsum)
}
