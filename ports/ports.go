// Package ports provides PortManager, which keeps track of the local ports
// bound by the sockets of a stack
package ports

import (
	"math"
	"math/rand"
	"sync"

	"github.com/YaoZengzeng/yunet/types"
)

const (
	// FirstEphemeral is the first port handed out to sockets bound to port 0
	FirstEphemeral uint16 = 16000

	anyIPAddress = types.Address("")
)

type portDescriptor struct {
	transport types.TransportProtocolNumber
	port      uint16
}

// bindAddresses is the set of local addresses bound on one port
type bindAddresses map[types.Address]struct{}

func bindKey(addr types.Address) types.Address {
	if addr.Unspecified() {
		return anyIPAddress
	}
	return addr
}

// isAvailable checks whether addr may still be bound. The unspecified address
// conflicts with every other binding on the same port
func (b bindAddresses) isAvailable(addr types.Address) bool {
	if addr == anyIPAddress {
		return len(b) == 0
	}

	if _, ok := b[anyIPAddress]; ok {
		return false
	}

	_, ok := b[addr]
	return !ok
}

// PortManager manages reserving and releasing ports
type PortManager struct {
	mu    sync.Mutex
	ports map[portDescriptor]bindAddresses
}

// NewPortManager creates an empty PortManager
func NewPortManager() *PortManager {
	return &PortManager{
		ports: make(map[portDescriptor]bindAddresses),
	}
}

// PickEphemeralPort starts at a random ephemeral port and walks the whole
// ephemeral range, asking testPort about each one, until a port is accepted or
// testPort fails
func (s *PortManager) PickEphemeralPort(testPort func(p uint16) (bool, error)) (uint16, error) {
	count := uint32(math.MaxUint16) - uint32(FirstEphemeral) + 1
	offset := uint32(rand.Int63n(int64(count)))

	for i := uint32(0); i < count; i++ {
		port := FirstEphemeral + uint16((offset+i)%count)
		ok, err := testPort(port)
		if err != nil {
			return 0, err
		}

		if ok {
			return port, nil
		}
	}

	return 0, types.ErrNoPortAvailable
}

// ReservePort marks an address/port combination as used. If port is zero a
// free ephemeral port is chosen and returned
func (s *PortManager) ReservePort(transport types.TransportProtocolNumber, addr types.Address, port uint16) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if port != 0 {
		if !s.reserveLocked(transport, addr, port) {
			return 0, types.ErrPortInUse
		}
		return port, nil
	}

	return s.PickEphemeralPort(func(p uint16) (bool, error) {
		return s.reserveLocked(transport, addr, p), nil
	})
}

func (s *PortManager) reserveLocked(transport types.TransportProtocolNumber, addr types.Address, port uint16) bool {
	addr = bindKey(addr)
	desc := portDescriptor{transport, port}
	m, ok := s.ports[desc]
	if !ok {
		m = make(bindAddresses)
		s.ports[desc] = m
	}

	if !m.isAvailable(addr) {
		return false
	}

	m[addr] = struct{}{}
	return true
}

// IsReserved reports whether addr is bound on port
func (s *PortManager) IsReserved(transport types.TransportProtocolNumber, addr types.Address, port uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.ports[portDescriptor{transport, port}][bindKey(addr)]
	return ok
}

// ReleasePort releases the reservation on an address/port combination so that
// other sockets can bind it
func (s *PortManager) ReleasePort(transport types.TransportProtocolNumber, addr types.Address, port uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	desc := portDescriptor{transport, port}
	m := s.ports[desc]
	delete(m, bindKey(addr))
	if len(m) == 0 {
		delete(s.ports, desc)
	}
}
