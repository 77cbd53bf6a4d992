// Package stack provides the glue between the link endpoints, the protocols
// and the sockets of the networking stack.
//
// A Stack is owned by nobody in particular: every access to its state goes
// through With or WithSocket, which serialize callers on the stack lock. The
// stack only advances when Poll is called, either directly or by the Run
// driver loop
package stack

import (
	"go.uber.org/zap"

	"github.com/YaoZengzeng/yunet/ports"
	"github.com/YaoZengzeng/yunet/tmutex"
	"github.com/YaoZengzeng/yunet/transport/udp"
	"github.com/YaoZengzeng/yunet/types"
	"github.com/YaoZengzeng/yunet/waiter"
)

const (
	// DefaultHopLimit is the ttl of outgoing datagrams whose socket doesn't
	// set one
	DefaultHopLimit = 64

	// DefaultIngressQueueLimit is the number of inbound packets a nic queues
	// between two polls
	DefaultIngressQueueLimit = 1024
)

// Options configures a Stack. Zero fields take their defaults
type Options struct {
	// DefaultHopLimit is the ttl used when a socket's hop limit is zero
	DefaultHopLimit uint8

	// IngressQueueLimit bounds the per-nic queue of packets waiting for
	// the next poll. Packets arriving at a full queue are dropped
	IngressQueueLimit int

	// Logger receives the stack's logs. Defaults to a no-op logger
	Logger *zap.Logger
}

// Stack is a networking stack, with its NICs, route table and sockets
type Stack struct {
	// mu protects everything below except wq, which has its own lock
	mu tmutex.Mutex

	nics    map[types.NicId]*nic
	routes  []types.Route
	sockets socketSet
	demux   transportDemuxer
	ports   *ports.PortManager
	ipID    uint16

	// wq is notified whenever the stack may have work to do
	wq waiter.Queue

	opts Options
	log  *zap.Logger
}

// New allocates a new networking stack with no NICs and no sockets
func New(opts Options) *Stack {
	if opts.DefaultHopLimit == 0 {
		opts.DefaultHopLimit = DefaultHopLimit
	}
	if opts.IngressQueueLimit <= 0 {
		opts.IngressQueueLimit = DefaultIngressQueueLimit
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Stack{
		nics:  make(map[types.NicId]*nic),
		demux: newTransportDemuxer(),
		ports: ports.NewPortManager(),
		opts:  opts,
		log:   opts.Logger,
	}
	s.mu.Init()

	return s
}

func (s *Stack) lock() {
	if s == nil || !s.mu.Initialized() {
		panic("stack: use of a Stack not created by stack.New")
	}
	s.mu.Lock()
}

// With runs f with exclusive access to the stack. f must not block and must
// not call back into the stack
func (s *Stack) With(f func(c *Context)) {
	s.lock()
	defer s.mu.Unlock()

	f(&Context{s: s})
}

// WithSocket runs f with exclusive access to the stack and the socket behind
// h, then wakes the stack so that the driver picks up whatever f changed.
// It returns types.ErrInvalidHandle, without calling f, if h was removed
func (s *Stack) WithSocket(h SocketHandle, f func(sock *udp.Socket, c *Context)) error {
	s.lock()
	defer s.mu.Unlock()

	sock := s.sockets.get(h)
	if sock == nil {
		return types.ErrInvalidHandle
	}

	f(sock, &Context{s: s})
	s.Wake()

	return nil
}

// Wake tells the driver loop that the stack may have work to do. It never
// blocks and may be called with or without the stack lock held
func (s *Stack) Wake() {
	s.wq.Notify(waiter.EventIn)
}

// EventRegister registers e to be notified on every Wake
func (s *Stack) EventRegister(e *waiter.Entry) {
	s.wq.EventRegister(e, waiter.EventIn)
}

// EventUnregister removes an entry added by EventRegister
func (s *Stack) EventUnregister(e *waiter.Entry) {
	s.wq.EventUnregister(e)
}

// AddSocket adds sock to the stack and returns its handle. The stack owns
// sock until RemoveSocket
func (s *Stack) AddSocket(sock *udp.Socket) SocketHandle {
	s.lock()
	defer s.mu.Unlock()

	h := s.sockets.add(sock)
	s.log.Debug("socket added", zap.Uint32("index", h.index))

	return h
}

// RemoveSocket removes the socket behind h. Its port reservation is released
// and its ring storage dropped, so the stack holds no reference to the
// caller's buffers once RemoveSocket returns. Anything waiting on the socket
// is woken and finds the handle gone
func (s *Stack) RemoveSocket(h SocketHandle) error {
	s.lock()
	defer s.mu.Unlock()

	sock := s.sockets.remove(h)
	if sock == nil {
		return types.ErrInvalidHandle
	}

	if sock.IsOpen() {
		s.unbindLocked(sock)
	}
	sock.Release()

	s.log.Debug("socket removed", zap.Uint32("index", h.index))
	return nil
}

// NumSockets returns the number of sockets in the stack
func (s *Stack) NumSockets() int {
	s.lock()
	defer s.mu.Unlock()

	return s.sockets.len()
}

// CreateNic creates a nic with the given id and attaches it to linkEp
func (s *Stack) CreateNic(id types.NicId, linkEp types.LinkEndpoint) error {
	if linkEp == nil {
		return types.ErrBadLinkEndpoint
	}

	s.lock()
	if _, ok := s.nics[id]; ok {
		s.mu.Unlock()
		return types.ErrDuplicateNicId
	}
	n := newNic(s, id, linkEp)
	s.nics[id] = n
	s.mu.Unlock()

	n.attachLinkEndpoint()

	s.log.Info("nic created", zap.Int32("nic", int32(id)), zap.Uint32("mtu", linkEp.MTU()))
	return nil
}

// AddAddress adds an address to the nic, so that it starts accepting packets
// sent to it
func (s *Stack) AddAddress(id types.NicId, addr types.Address) error {
	s.lock()
	defer s.mu.Unlock()

	n, ok := s.nics[id]
	if !ok {
		return types.ErrUnknownNicId
	}

	if err := n.addAddressLocked(addr); err != nil {
		return err
	}

	s.log.Info("address added", zap.Int32("nic", int32(id)), zap.Stringer("address", addr))
	return nil
}

// SetRouteTable replaces the route table. Routes are tried in order
func (s *Stack) SetRouteTable(table []types.Route) {
	s.lock()
	defer s.mu.Unlock()

	s.routes = append([]types.Route(nil), table...)
}

// findRouteLocked returns the nic of the first route that reaches addr. A
// non-zero id restricts the search to routes through that nic
func (s *Stack) findRouteLocked(id types.NicId, addr types.Address) (*nic, error) {
	for i := range s.routes {
		r := &s.routes[i]
		if id != 0 && r.Nic != id {
			continue
		}

		if !r.Match(addr) {
			continue
		}

		if n, ok := s.nics[r.Nic]; ok {
			return n, nil
		}
	}

	return nil, types.ErrNoRoute
}

// linkBusyLocked returns true if a link refused a packet during the last poll
func (s *Stack) linkBusyLocked() bool {
	for _, n := range s.nics {
		if n.busy {
			return true
		}
	}
	return false
}

// hasAddressLocked returns true if addr is assigned to any nic
func (s *Stack) hasAddressLocked(addr types.Address) bool {
	for _, n := range s.nics {
		if n.hasAddressLocked(addr) {
			return true
		}
	}
	return false
}

func (s *Stack) unbindLocked(sock *udp.Socket) {
	local := sock.Endpoint()
	s.ports.ReleasePort(udp.ProtocolNumber, local.Address, local.Port)
	s.demux.unregisterEndpoint(local.Port, sock)
}
