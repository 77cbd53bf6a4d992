// Package checker provides helpers to check the packets the stack writes to
// its links in tests
package checker

import (
	"bytes"
	"testing"

	"github.com/YaoZengzeng/yunet/header"
	"github.com/YaoZengzeng/yunet/types"
)

// NetworkChecker is a function to check a property of a network packet
type NetworkChecker func(*testing.T, header.IPv4)

// TransportChecker is a function to check a property of a transport packet
type TransportChecker func(*testing.T, header.Transport)

// IPv4 checks the validity and properties of the given IPv4 packet. It is
// expected to be used in conjunction with other network checkers for specific
// properties. For example, to check the source and destination address, one
// would call:
//
// checker.IPv4(t, b, checker.SrcAddr(x), checker.DstAddr(y))
func IPv4(t *testing.T, b []byte, checkers ...NetworkChecker) {
	t.Helper()

	ipv4 := header.IPv4(b)
	if !ipv4.IsValid(len(b)) {
		t.Fatalf("Not a valid IPv4 packet")
	}

	if xsum := ipv4.CalculateChecksum(); xsum != 0xffff {
		t.Fatalf("Bad checksum: 0x%x, checksum in packet: 0x%x", xsum, ipv4.Checksum())
	}

	for _, f := range checkers {
		f(t, ipv4)
	}
}

// SrcAddr creates a checker that checks the source address
func SrcAddr(addr types.Address) NetworkChecker {
	return func(t *testing.T, h header.IPv4) {
		if a := h.SourceAddress(); a != addr {
			t.Fatalf("Bad source address, got %v, want %v", a, addr)
		}
	}
}

// DstAddr creates a checker that checks the destination address
func DstAddr(addr types.Address) NetworkChecker {
	return func(t *testing.T, h header.IPv4) {
		if a := h.DestinationAddress(); a != addr {
			t.Fatalf("Bad destination address, got %v, want %v", a, addr)
		}
	}
}

// TTL creates a checker that checks the ttl
func TTL(ttl uint8) NetworkChecker {
	return func(t *testing.T, h header.IPv4) {
		if v := h.TTL(); v != ttl {
			t.Fatalf("Bad ttl, got %v, want %v", v, ttl)
		}
	}
}

// PayloadLen creates a checker that checks the payload length
func PayloadLen(plen int) NetworkChecker {
	return func(t *testing.T, h header.IPv4) {
		if l := len(h.Payload()); l != plen {
			t.Fatalf("Bad payload length, got %v, want %v", l, plen)
		}
	}
}

// UDP creates a checker that checks the transport protocol is UDP, verifies
// the checksum and runs additional transport header checkers
func UDP(checkers ...TransportChecker) NetworkChecker {
	return func(t *testing.T, h header.IPv4) {
		if p := h.TransportProtocol(); p != header.UDPProtocolNumber {
			t.Fatalf("Bad protocol, got %v, want %v", p, header.UDPProtocolNumber)
		}

		udp := header.UDP(h.Payload())
		if len(udp) < header.UDPMinimumSize {
			t.Fatalf("Short udp header, got %d bytes", len(udp))
		}

		if l := int(udp.Length()); l != len(udp) {
			t.Fatalf("Bad udp length, got %v, want %v", l, len(udp))
		}

		// Verify the checksum
		xsum := header.PseudoHeaderChecksum(uint8(header.UDPProtocolNumber), string(h.SourceAddress()), string(h.DestinationAddress()), uint16(len(udp)))
		if xsum = header.Checksum(udp, xsum); xsum != 0xffff {
			t.Fatalf("Bad checksum: 0x%x, checksum in datagram: 0x%x", xsum, udp.Checksum())
		}

		for _, f := range checkers {
			f(t, udp)
		}
	}
}

// SrcPort creates a checker that checks the source port
func SrcPort(port uint16) TransportChecker {
	return func(t *testing.T, h header.Transport) {
		if p := h.SourcePort(); p != port {
			t.Fatalf("Bad source port, got %v, want %v", p, port)
		}
	}
}

// DstPort creates a checker that checks the destination port
func DstPort(port uint16) TransportChecker {
	return func(t *testing.T, h header.Transport) {
		if p := h.DestinationPort(); p != port {
			t.Fatalf("Bad destination port, got %v, want %v", p, port)
		}
	}
}

// Payload creates a checker that checks the transport payload
func Payload(want []byte) TransportChecker {
	return func(t *testing.T, h header.Transport) {
		if got := h.Payload(); !bytes.Equal(got, want) {
			t.Fatalf("Bad payload, got %q, want %q", got, want)
		}
	}
}
