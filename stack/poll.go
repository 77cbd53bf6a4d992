package stack

import (
	"go.uber.org/zap"

	"github.com/YaoZengzeng/yunet/buffer"
	"github.com/YaoZengzeng/yunet/header"
	"github.com/YaoZengzeng/yunet/network/ipv4"
	"github.com/YaoZengzeng/yunet/transport/udp"
	"github.com/YaoZengzeng/yunet/types"
)

// Poll advances the stack once: every packet queued by the nics is delivered
// to its socket, then every socket's transmit ring is flushed to the links.
// It returns true if any packet was processed or sent
func (s *Stack) Poll() bool {
	s.lock()
	defer s.mu.Unlock()

	return s.pollLocked()
}

func (s *Stack) pollLocked() bool {
	progress := false

	for _, n := range s.nics {
		for _, v := range n.drainIngress() {
			s.deliverLocked(n, v)
			progress = true
		}
		n.busy = false
	}

	// A socket stops at the first datagram its link refuses; the others keep
	// flushing to their own links
	s.sockets.forEach(func(sock *udp.Socket) {
		for sock.Dispatch(s.emitLocked) == nil {
			progress = true
		}
	})

	return progress
}

// deliverLocked parses an inbound packet and queues its payload on the
// socket it is addressed to. Packets that can't be delivered are dropped
func (s *Stack) deliverLocked(n *nic, v []byte) {
	ip, err := ipv4.Parse(v)
	if err != nil {
		s.log.Debug("dropping invalid packet", zap.Int32("nic", int32(n.id)), zap.Error(err))
		return
	}

	if ip.TransportProtocol() != udp.ProtocolNumber {
		s.log.Debug("dropping packet of unsupported protocol", zap.Uint8("protocol", ip.Protocol()))
		return
	}

	if !n.hasAddressLocked(ip.DestinationAddress()) {
		s.log.Debug("dropping packet for foreign address", zap.Stringer("dst", ip.DestinationAddress()))
		return
	}

	u, err := udp.Parse(ip)
	if err != nil {
		s.log.Debug("dropping invalid datagram", zap.Stringer("src", ip.SourceAddress()), zap.Error(err))
		return
	}

	src := types.FullAddress{Nic: n.id, Address: ip.SourceAddress(), Port: u.SourcePort()}
	dst := types.FullAddress{Nic: n.id, Address: ip.DestinationAddress(), Port: u.DestinationPort()}

	sock := s.demux.findEndpoint(src, dst)
	if sock == nil {
		s.log.Debug("dropping datagram for unbound port", zap.Stringer("src", src), zap.Stringer("dst", dst))
		return
	}

	if err := sock.Process(src, u.Payload()); err != nil {
		s.log.Debug("dropping datagram", zap.Stringer("src", src), zap.Stringer("dst", dst), zap.Error(err))
	}
}

// emitLocked encapsulates one datagram and writes it to the link its route
// goes through. Datagrams that can't be routed or don't fit the link are
// dropped; only types.ErrWouldBlock is returned, when the link is busy, which
// keeps the datagram queued on its socket
func (s *Stack) emitLocked(local, remote types.FullAddress, hopLimit uint8, payload []byte) error {
	n, err := s.findRouteLocked(remote.Nic, remote.Address)
	if err != nil {
		s.log.Debug("dropping datagram", zap.Stringer("remote", remote), zap.Error(err))
		return nil
	}

	if n.busy {
		return types.ErrWouldBlock
	}

	src := local
	if src.Address.Unspecified() {
		src.Address = n.primaryAddressLocked()
		if src.Address == "" {
			s.log.Debug("dropping datagram", zap.Stringer("remote", remote), zap.Error(types.ErrBadLocalAddress))
			return nil
		}
	}

	if hopLimit == 0 {
		hopLimit = s.opts.DefaultHopLimit
	}

	hdr := buffer.NewPrependable(int(n.linkEp.MaxHeaderLength()) + header.IPv4MinimumSize + header.UDPMinimumSize)
	udp.Encode(hdr.Prepend(header.UDPMinimumSize), src, remote, payload)

	s.ipID++
	err = ipv4.WritePacket(n.linkEp, &ipv4.Fields{
		Src:      src.Address,
		Dst:      remote.Address,
		TTL:      hopLimit,
		ID:       s.ipID,
		Protocol: udp.ProtocolNumber,
	}, &hdr, payload)

	switch err {
	case nil:
		return nil
	case types.ErrWouldBlock:
		n.busy = true
		return err
	default:
		s.log.Debug("dropping datagram", zap.Stringer("remote", remote), zap.Int("size", len(payload)), zap.Error(err))
		return nil
	}
}
