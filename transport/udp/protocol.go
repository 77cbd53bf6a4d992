package udp

import (
	"github.com/YaoZengzeng/yunet/header"
	"github.com/YaoZengzeng/yunet/types"
)

// ProtocolNumber is the udp protocol number
const ProtocolNumber = header.UDPProtocolNumber

// Parse validates the udp segment carried by the given ipv4 packet and
// returns it trimmed to its length field
func Parse(ip header.Network) (header.UDP, error) {
	v := ip.Payload()
	if len(v) < header.UDPMinimumSize {
		return nil, types.ErrMalformed
	}

	h := header.UDP(v)
	length := int(h.Length())
	if length < header.UDPMinimumSize || length > len(v) {
		return nil, types.ErrMalformed
	}
	h = h[:length]

	// A zero checksum means the sender didn't compute one
	if h.Checksum() != 0 {
		xsum := header.PseudoHeaderChecksum(uint8(ProtocolNumber), string(ip.SourceAddress()), string(ip.DestinationAddress()), uint16(length))
		if header.Checksum(h, xsum) != 0xffff {
			return nil, types.ErrMalformed
		}
	}

	return h, nil
}

// Encode builds the udp header for payload in hdr, including the checksum
// over the pseudo-header formed by src and dst
func Encode(hdr []byte, src, dst types.FullAddress, payload []byte) {
	length := uint16(header.UDPMinimumSize + len(payload))

	u := header.UDP(hdr)
	u.Encode(&header.UDPFields{
		SrcPort: src.Port,
		DstPort: dst.Port,
		Length:  length,
	})

	xsum := header.PseudoHeaderChecksum(uint8(ProtocolNumber), string(src.Address), string(dst.Address), length)
	xsum = header.Checksum(u[:header.UDPMinimumSize], xsum)
	xsum = ^header.Checksum(payload, xsum)
	if xsum == 0 {
		// Zero is reserved for "no checksum"
		xsum = 0xffff
	}
	u.SetChecksum(xsum)
}
