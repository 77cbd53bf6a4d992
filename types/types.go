package types

import (
	"fmt"
	"net"
)

// Address is a byte slice cast as a string that represents the address of a
// network node. An empty Address, or one made only of zero bytes, is the
// unspecified (wildcard) address
type Address string

// Unspecified reports whether a is the wildcard address
func (a Address) Unspecified() bool {
	for i := 0; i < len(a); i++ {
		if a[i] != 0 {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.String
func (a Address) String() string {
	switch len(a) {
	case 0:
		return "*"
	case net.IPv4len, net.IPv6len:
		return net.IP(a).String()
	default:
		return fmt.Sprintf("%x", []byte(a))
	}
}

// NicId is a number that uniquely identifies a Nic
type NicId int32

// NetworkProtocolNumber is the number of a network protocol
type NetworkProtocolNumber uint32

// TransportProtocolNumber is the number of a transport protocol
type TransportProtocolNumber uint32

// FullAddress represents a full transport node address, as required by the
// Bind() and Send() methods of datagram sockets
type FullAddress struct {
	// Nic is the Id of the Nic this address refers to
	// This may not be used by all endpoint types
	Nic NicId

	// Address is the network address
	Address Address

	// Port is the transport port
	Port uint16
}

// IsSpecified reports whether both the address and the port are set, which
// is required for the remote end of a datagram
func (f FullAddress) IsSpecified() bool {
	return !f.Address.Unspecified() && f.Port != 0
}

// String implements fmt.Stringer.String
func (f FullAddress) String() string {
	return fmt.Sprintf("%v:%d", f.Address, f.Port)
}
