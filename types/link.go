package types

// LinkAddress is a byte slice cast as a string that represents a link address.
// It is typically a 6-byte MAC address
type LinkAddress string

// LinkEndpoint is the interface implemented by data link layer protocols (e.g.,
// ethernet, loopback, raw) and used by the stack to send packets out through
// the implementer's data link endpoint
type LinkEndpoint interface {
	// MTU is the maximum transmission unit for this endpoint. This is usually dictated
	// by the backing physical network; when such a physical network doesn't exist, the
	// limit is generally 64k, which includes the maximum size of an IP packet
	MTU() uint32

	// LinkAddress returns the link address (typically a MAC) of the link endpoint
	LinkAddress() LinkAddress

	// MaxHeaderLength returns the maximum size of the data link (and lower level layers
	// combined) headers can have. Higher levels use this information to reserve space in
	// front of the packets they're building
	MaxHeaderLength() uint16

	// Attach attaches the data link layer endpoint to the network-layer
	// dispatcher of the stack
	Attach(dispatcher NetworkDispatcher)

	// WritePacket writes a packet made of hdr followed by payload. It must
	// not block: when the link cannot take the packet right now it returns
	// ErrWouldBlock and the caller keeps the packet queued
	WritePacket(hdr, payload []byte, protocol NetworkProtocolNumber) error
}

// NetworkDispatcher contains the methods used by the network stack to deliver
// packets to the appropriate network endpoint after it has been handled by the
// data link layer
type NetworkDispatcher interface {
	// DeliverNetworkPacket hands an inbound packet to the stack. The stack
	// copies what it keeps, so the caller retains ownership of v
	DeliverNetworkPacket(linkEp LinkEndpoint, protocol NetworkProtocolNumber, v []byte)
}
