// Package sniffer provides a link endpoint that wraps another one and logs
// every packet crossing it
package sniffer

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/YaoZengzeng/yunet/header"
	"github.com/YaoZengzeng/yunet/types"
)

// Endpoint is a link endpoint that logs the packets going through the lower
// endpoint it wraps
type Endpoint struct {
	dispatcher types.NetworkDispatcher
	lower      types.LinkEndpoint
	log        *zap.Logger

	// LogPackets turns logging on and off. It starts on
	LogPackets atomic.Bool
}

// New creates a new sniffer link-layer endpoint. It wraps around lower and
// logs packets as they traverse the endpoint
func New(lower types.LinkEndpoint, log *zap.Logger) *Endpoint {
	if log == nil {
		log = zap.NewNop()
	}

	e := &Endpoint{
		lower: lower,
		log:   log,
	}
	e.LogPackets.Store(true)

	return e
}

// DeliverNetworkPacket implements the types.NetworkDispatcher interface. It is
// called by the link-layer endpoint being wrapped when a packet arrives, and
// logs the packet before forwarding to the actual dispatcher
func (e *Endpoint) DeliverNetworkPacket(linkEp types.LinkEndpoint, protocol types.NetworkProtocolNumber, v []byte) {
	if e.LogPackets.Load() {
		LogPacket(e.log, "recv", protocol, v, nil)
	}
	e.dispatcher.DeliverNetworkPacket(e, protocol, v)
}

// Attach implements the types.LinkEndpoint interface. It saves the dispatcher
// and registers with lower endpoint as its dispatcher so that "e" is called
// for inbound packets
func (e *Endpoint) Attach(dispatcher types.NetworkDispatcher) {
	e.dispatcher = dispatcher
	e.lower.Attach(e)
}

func (e *Endpoint) MTU() uint32 {
	return e.lower.MTU()
}

func (e *Endpoint) MaxHeaderLength() uint16 {
	return e.lower.MaxHeaderLength()
}

func (e *Endpoint) LinkAddress() types.LinkAddress {
	return e.lower.LinkAddress()
}

// WritePacket implements the types.LinkEndpoint interface. It is called by
// higher-level protocols to write packets; it just logs the packet and forwards
// the request to the lower endpoint
func (e *Endpoint) WritePacket(hdr, payload []byte, protocol types.NetworkProtocolNumber) error {
	if e.LogPackets.Load() {
		LogPacket(e.log, "send", protocol, hdr, payload)
	}
	return e.lower.WritePacket(hdr, payload, protocol)
}

// LogPacket logs the given packet. b holds the network header, and the rest
// of the packet when plb is nil
func LogPacket(log *zap.Logger, prefix string, protocol types.NetworkProtocolNumber, b, plb []byte) {
	if protocol != header.IPv4ProtocolNumber {
		log.Debug("unknown network protocol", zap.String("dir", prefix), zap.Uint32("protocol", uint32(protocol)))
		return
	}

	if len(b) < header.IPv4MinimumSize {
		log.Debug("short packet", zap.String("dir", prefix), zap.Int("size", len(b)))
		return
	}

	ipv4 := header.IPv4(b)
	src := ipv4.SourceAddress()
	dst := ipv4.DestinationAddress()
	size := ipv4.PayloadLength()
	id := ipv4.ID()

	// Figure out the transport layer info
	t := b[ipv4.HeaderLength():]
	if plb != nil && len(t) < header.UDPMinimumSize {
		t = append(t[:len(t):len(t)], plb...)
	}

	switch ipv4.TransportProtocol() {
	case header.UDPProtocolNumber:
		if len(t) < header.UDPMinimumSize {
			break
		}
		udp := header.UDP(t)
		log.Info(prefix,
			zap.String("proto", "udp"),
			zap.Stringer("src", src),
			zap.Uint16("srcPort", udp.SourcePort()),
			zap.Stringer("dst", dst),
			zap.Uint16("dstPort", udp.DestinationPort()),
			zap.Uint16("len", size-header.UDPMinimumSize),
			zap.Uint16("id", id),
			zap.Uint16("xsum", udp.Checksum()),
		)
		return
	}

	log.Info(prefix,
		zap.Uint8("proto", ipv4.Protocol()),
		zap.Stringer("src", src),
		zap.Stringer("dst", dst),
		zap.Uint16("len", size),
		zap.Uint16("id", id),
	)
}
