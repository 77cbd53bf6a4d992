package stack

import (
	"github.com/YaoZengzeng/yunet/transport/udp"
	"github.com/YaoZengzeng/yunet/types"
)

// transportDemuxer demultiplexes inbound datagrams to the bound sockets. It
// indexes sockets by local port, then lets each candidate decide with
// udp.Socket.Accepts
type transportDemuxer struct {
	endpoints map[uint16][]*udp.Socket
}

func newTransportDemuxer() transportDemuxer {
	return transportDemuxer{
		endpoints: make(map[uint16][]*udp.Socket),
	}
}

// registerEndpoint makes sock a candidate for datagrams sent to port
func (d *transportDemuxer) registerEndpoint(port uint16, sock *udp.Socket) {
	d.endpoints[port] = append(d.endpoints[port], sock)
}

// unregisterEndpoint removes sock from the candidates for port
func (d *transportDemuxer) unregisterEndpoint(port uint16, sock *udp.Socket) {
	eps := d.endpoints[port]
	for i, ep := range eps {
		if ep == sock {
			eps = append(eps[:i], eps[i+1:]...)
			break
		}
	}

	if len(eps) == 0 {
		delete(d.endpoints, port)
		return
	}
	d.endpoints[port] = eps
}

// findEndpoint returns the socket a datagram from src to dst belongs to. A
// socket bound to dst's address wins over one bound to the unspecified
// address
func (d *transportDemuxer) findEndpoint(src, dst types.FullAddress) *udp.Socket {
	var wildcard *udp.Socket
	for _, ep := range d.endpoints[dst.Port] {
		if !ep.Accepts(src, dst) {
			continue
		}

		if !ep.Endpoint().Address.Unspecified() {
			return ep
		}

		if wildcard == nil {
			wildcard = ep
		}
	}

	return wildcard
}
