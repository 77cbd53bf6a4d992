package stack

import (
	"github.com/YaoZengzeng/yunet/transport/udp"
)

// SocketHandle identifies a socket added to a Stack. A handle outlives its
// socket: once the socket is removed the handle is stale and every lookup
// through it fails. The zero SocketHandle is never valid
type SocketHandle struct {
	index uint32
	gen   uint32
}

type socketSlot struct {
	// gen is bumped every time the slot is emptied, so that handles to a
	// previous occupant stop matching
	gen  uint32
	sock *udp.Socket
}

// socketSet is the arena holding the sockets of a stack
type socketSet struct {
	slots []socketSlot
	free  []uint32
	count int
}

func (set *socketSet) add(sock *udp.Socket) SocketHandle {
	var index uint32
	if n := len(set.free); n > 0 {
		index = set.free[n-1]
		set.free = set.free[:n-1]
	} else {
		index = uint32(len(set.slots))
		set.slots = append(set.slots, socketSlot{gen: 1})
	}

	slot := &set.slots[index]
	slot.sock = sock
	set.count++

	return SocketHandle{index: index, gen: slot.gen}
}

func (set *socketSet) get(h SocketHandle) *udp.Socket {
	if int(h.index) >= len(set.slots) {
		return nil
	}

	slot := &set.slots[h.index]
	if slot.gen != h.gen {
		return nil
	}
	return slot.sock
}

// remove empties the slot behind h and returns its socket, or nil if h is
// stale
func (set *socketSet) remove(h SocketHandle) *udp.Socket {
	sock := set.get(h)
	if sock == nil {
		return nil
	}

	slot := &set.slots[h.index]
	slot.sock = nil
	slot.gen++
	if slot.gen == 0 {
		slot.gen = 1
	}
	set.free = append(set.free, h.index)
	set.count--

	return sock
}

func (set *socketSet) forEach(f func(sock *udp.Socket)) {
	for i := range set.slots {
		if sock := set.slots[i].sock; sock != nil {
			f(sock)
		}
	}
}

func (set *socketSet) len() int {
	return set.count
}
