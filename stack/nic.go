package stack

import (
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/YaoZengzeng/yunet/header"
	"github.com/YaoZengzeng/yunet/network/ipv4"
	"github.com/YaoZengzeng/yunet/types"
)

// nic represents a "network interface card" to which the networking stack is
// attached
type nic struct {
	stack  *Stack
	id     types.NicId
	linkEp types.LinkEndpoint

	// addrs and busy are protected by the stack lock
	addrs []types.Address

	// busy is set when the link refused a packet during the current poll.
	// Nothing else is written to the link until the next poll
	busy bool

	// mu protects ingress. It is separate from the stack lock so that link
	// endpoints never wait for a poll to finish
	mu      sync.Mutex
	ingress *queue.Queue
}

func newNic(stack *Stack, id types.NicId, ep types.LinkEndpoint) *nic {
	return &nic{
		stack:   stack,
		id:      id,
		linkEp:  ep,
		ingress: queue.New(),
	}
}

// attachLinkEndpoint attaches the nic to the endpoint, which will enable it
// to start delivering packets
func (n *nic) attachLinkEndpoint() {
	n.linkEp.Attach(n)
}

func (n *nic) addAddressLocked(addr types.Address) error {
	if len(addr) != header.IPv4AddressSize || addr.Unspecified() {
		return types.ErrBadLocalAddress
	}

	if n.hasAddressLocked(addr) {
		return types.ErrDuplicateAddress
	}

	n.addrs = append(n.addrs, addr)
	return nil
}

func (n *nic) hasAddressLocked(addr types.Address) bool {
	for _, a := range n.addrs {
		if a == addr {
			return true
		}
	}
	return false
}

// primaryAddressLocked returns the source address for packets leaving
// through the nic, or an empty address if it has none
func (n *nic) primaryAddressLocked() types.Address {
	if len(n.addrs) == 0 {
		return ""
	}
	return n.addrs[0]
}

// DeliverNetworkPacket queues an inbound packet for the next poll and wakes
// the stack. It is called by the link endpoint, from any goroutine; v is
// copied
func (n *nic) DeliverNetworkPacket(linkEp types.LinkEndpoint, protocol types.NetworkProtocolNumber, v []byte) {
	if protocol != ipv4.ProtocolNumber {
		n.stack.log.Debug("dropping packet of unknown protocol", zap.Int32("nic", int32(n.id)), zap.Uint32("protocol", uint32(protocol)))
		return
	}

	n.mu.Lock()
	if n.ingress.Length() >= n.stack.opts.IngressQueueLimit {
		n.mu.Unlock()
		n.stack.log.Warn("ingress queue full, dropping packet", zap.Int32("nic", int32(n.id)), zap.Int("size", len(v)))
		return
	}
	n.ingress.Add(append([]byte(nil), v...))
	n.mu.Unlock()

	n.stack.Wake()
}

// drainIngress removes and returns every queued inbound packet
func (n *nic) drainIngress() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ingress.Length() == 0 {
		return nil
	}

	pkts := make([][]byte, 0, n.ingress.Length())
	for n.ingress.Length() > 0 {
		pkts = append(pkts, n.ingress.Remove().([]byte))
	}
	return pkts
}
