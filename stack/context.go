package stack

import (
	"go.uber.org/zap"

	"github.com/YaoZengzeng/yunet/header"
	"github.com/YaoZengzeng/yunet/network/ipv4"
	"github.com/YaoZengzeng/yunet/transport/udp"
	"github.com/YaoZengzeng/yunet/types"
)

// Context gives the closure passed to With or WithSocket access to the stack
// state. It must not be used after the closure returns
type Context struct {
	s *Stack
}

// Bind binds sock to the local endpoint and reserves its port. Port zero
// picks a free ephemeral port. An unspecified address binds every local
// address.
//
// It returns types.ErrIllegal if sock is already bound,
// types.ErrBadLocalAddress if the address isn't assigned to any nic and
// types.ErrPortInUse if another socket holds the endpoint
func (c *Context) Bind(sock *udp.Socket, endpoint types.FullAddress) error {
	s := c.s

	if sock.IsOpen() {
		return types.ErrIllegal
	}

	if !endpoint.Address.Unspecified() && !s.hasAddressLocked(endpoint.Address) {
		return types.ErrBadLocalAddress
	}

	port, err := s.ports.ReservePort(udp.ProtocolNumber, endpoint.Address, endpoint.Port)
	if err != nil {
		return err
	}
	endpoint.Port = port

	if err := sock.Bind(endpoint); err != nil {
		s.ports.ReleasePort(udp.ProtocolNumber, endpoint.Address, port)
		return err
	}
	s.demux.registerEndpoint(port, sock)

	s.log.Debug("socket bound", zap.Stringer("local", endpoint))
	return nil
}

// Close unbinds sock, releases its port and drops its queued datagrams
func (c *Context) Close(sock *udp.Socket) {
	if sock.IsOpen() {
		c.s.unbindLocked(sock)
	}
	sock.Close()
}

// MaxPayloadSize returns the largest datagram payload that can be sent to
// remote without fragmentation
func (c *Context) MaxPayloadSize(remote types.FullAddress) (int, error) {
	n, err := c.s.findRouteLocked(remote.Nic, remote.Address)
	if err != nil {
		return 0, err
	}

	return ipv4.MaxPayloadSize(n.linkEp) - header.UDPMinimumSize, nil
}
