// Package channel provides a link endpoint that keeps outbound packets in a
// Go channel and lets callers inject inbound packets. It is the wire used by
// tests
package channel

import (
	"github.com/YaoZengzeng/yunet/buffer"
	"github.com/YaoZengzeng/yunet/types"
)

// PacketInfo holds all the information about an outbound packet
type PacketInfo struct {
	Header   buffer.View
	Payload  buffer.View
	Protocol types.NetworkProtocolNumber
}

// Endpoint is link layer endpoint that stores outbound packets in a channel
// and allows injection of inbound packets
type Endpoint struct {
	dispatcher types.NetworkDispatcher
	mtu        uint32

	C chan PacketInfo
}

// New creates a new channel endpoint. Once size packets are waiting in C the
// endpoint refuses further writes with types.ErrWouldBlock
func New(size int, mtu uint32) *Endpoint {
	return &Endpoint{
		C:   make(chan PacketInfo, size),
		mtu: mtu,
	}
}

// Inject injects an inbound packet
func (e *Endpoint) Inject(protocol types.NetworkProtocolNumber, v []byte) {
	e.dispatcher.DeliverNetworkPacket(e, protocol, v)
}

// Attach saves the stack network layer dispatcher for use later when packets
// are injected
func (e *Endpoint) Attach(dispatcher types.NetworkDispatcher) {
	e.dispatcher = dispatcher
}

// MTU implements types.LinkEndpoint.MTU. It returns the value initialized
// during construction
func (e *Endpoint) MTU() uint32 {
	return e.mtu
}

// MaxHeaderLength returns the maximum size of the link layer header. Given it
// doesn't have a header, it just returns 0
func (e *Endpoint) MaxHeaderLength() uint16 {
	return 0
}

// LinkAddress returns the link address of this endpoint
func (e *Endpoint) LinkAddress() types.LinkAddress {
	return ""
}

// WritePacket copies the packet into the channel
func (e *Endpoint) WritePacket(hdr, payload []byte, protocol types.NetworkProtocolNumber) error {
	p := PacketInfo{
		Header:   buffer.NewViewFromBytes(hdr),
		Protocol: protocol,
	}

	if payload != nil {
		p.Payload = buffer.NewViewFromBytes(payload)
	}

	select {
	case e.C <- p:
		return nil
	default:
		return types.ErrWouldBlock
	}
}
