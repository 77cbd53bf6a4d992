// Package ipv4 contains the implementation of the ipv4 network protocol as the
// stack uses it: validating inbound packets and prepending the ipv4 header to
// outbound transport segments. Fragmented packets and ip options are not
// supported
package ipv4

import (
	"github.com/YaoZengzeng/yunet/buffer"
	"github.com/YaoZengzeng/yunet/header"
	"github.com/YaoZengzeng/yunet/types"
)

const (
	// ProtocolNumber is the ipv4 protocol number
	ProtocolNumber = header.IPv4ProtocolNumber

	// MaxTotalSize is the largest total length an ipv4 packet can carry
	MaxTotalSize = 0xffff
)

// Parse validates the inbound packet in v and returns it as an ipv4 header,
// trimmed to its total length
func Parse(v []byte) (header.IPv4, error) {
	if header.IPVersion(v) != header.IPv4Version {
		return nil, types.ErrNotSupported
	}

	h := header.IPv4(v)
	if !h.IsValid(len(v)) {
		return nil, types.ErrMalformed
	}

	if xsum := h.CalculateChecksum(); xsum != 0xffff {
		return nil, types.ErrMalformed
	}

	if h.Flags()&header.IPv4FlagMoreFragments != 0 || h.FragmentOffset() != 0 {
		return nil, types.ErrNotSupported
	}

	return h[:h.TotalLength()], nil
}

// Fields describes an outbound packet
type Fields struct {
	Src      types.Address
	Dst      types.Address
	TTL      uint8
	ID       uint16
	Protocol types.TransportProtocolNumber
}

// WritePacket prepends the ipv4 header to hdr, which already holds the
// transport header, and hands the packet to the link endpoint
func WritePacket(linkEp types.LinkEndpoint, f *Fields, hdr *buffer.Prependable, payload []byte) error {
	length := hdr.UsedLength() + len(payload) + header.IPv4MinimumSize
	if length > MaxTotalSize || uint32(length) > linkEp.MTU() {
		return types.ErrMessageTooLong
	}

	ip := header.IPv4(hdr.Prepend(header.IPv4MinimumSize))
	if ip == nil {
		return types.ErrMalformed
	}

	ip.Encode(&header.IPv4Fields{
		IHL:         header.IPv4MinimumSize,
		TotalLength: uint16(length),
		ID:          f.ID,
		Flags:       header.IPv4FlagDontFragment,
		TTL:         f.TTL,
		Protocol:    uint8(f.Protocol),
		SrcAddr:     f.Src,
		DstAddr:     f.Dst,
	})
	ip.SetChecksum(^ip.CalculateChecksum())

	return linkEp.WritePacket(hdr.View(), payload, ProtocolNumber)
}

// MaxPayloadSize returns the largest transport segment that fits in a single
// packet on the given link
func MaxPayloadSize(linkEp types.LinkEndpoint) int {
	mtu := int(linkEp.MTU())
	if mtu > MaxTotalSize {
		mtu = MaxTotalSize
	}
	return mtu - header.IPv4MinimumSize
}
