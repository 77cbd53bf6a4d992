// Package udp contains the datagram socket state kept inside the stack. A
// Socket is never used concurrently: every method must be called with the
// stack lock held, which is what stack.Stack.WithSocket arranges
package udp

import (
	"github.com/YaoZengzeng/yunet/buffer"
	"github.com/YaoZengzeng/yunet/types"
	"github.com/YaoZengzeng/yunet/waiter"
)

// PacketMetadata is the per-datagram record type of the socket rings
type PacketMetadata = buffer.PacketMetadata

// Socket is a UDP socket as the stack sees it: a local endpoint, a receive
// ring, a transmit ring and one pending waker per direction
type Socket struct {
	endpoint types.FullAddress
	hopLimit uint8

	rx *buffer.PacketBuffer
	tx *buffer.PacketBuffer

	rxWaker waiter.Registration
	txWaker waiter.Registration
}

// NewSocket creates an unbound socket on top of the given rings
func NewSocket(rx, tx *buffer.PacketBuffer) *Socket {
	return &Socket{
		rx: rx,
		tx: tx,
	}
}

// Endpoint returns the bound local endpoint. The port is zero if the socket
// is not bound
func (s *Socket) Endpoint() types.FullAddress {
	return s.endpoint
}

// HopLimit returns the ttl used for outgoing datagrams, or zero if the stack
// default applies
func (s *Socket) HopLimit() uint8 {
	return s.hopLimit
}

// SetHopLimit sets the ttl used for outgoing datagrams. Zero restores the
// stack default
func (s *Socket) SetHopLimit(hopLimit uint8) {
	s.hopLimit = hopLimit
}

// Bind binds the socket to the given local endpoint. The port must be set;
// an unspecified address accepts datagrams sent to any local address
func (s *Socket) Bind(endpoint types.FullAddress) error {
	if endpoint.Port == 0 {
		return types.ErrUnaddressable
	}

	if s.IsOpen() {
		return types.ErrIllegal
	}

	s.endpoint = endpoint

	s.rxWaker.Wake()
	s.txWaker.Wake()

	return nil
}

// Close unbinds the socket and drops every queued datagram. Closing a closed
// socket is a no-op
func (s *Socket) Close() {
	s.endpoint = types.FullAddress{}
	s.rx.Reset()
	s.tx.Reset()

	s.rxWaker.Wake()
	s.txWaker.Wake()
}

// IsOpen returns true if the socket is bound to a port
func (s *Socket) IsOpen() bool {
	return s.endpoint.Port != 0
}

// CanSend returns true if the transmit ring has a free record
func (s *Socket) CanSend() bool {
	return !s.tx.IsFull()
}

// CanRecv returns true if a datagram is waiting in the receive ring
func (s *Socket) CanRecv() bool {
	return !s.rx.IsEmpty()
}

// PacketRecvCapacity returns the number of datagrams the receive ring holds
func (s *Socket) PacketRecvCapacity() int {
	return s.rx.PacketCapacity()
}

// PacketSendCapacity returns the number of datagrams the transmit ring holds
func (s *Socket) PacketSendCapacity() int {
	return s.tx.PacketCapacity()
}

// PayloadRecvCapacity returns the number of payload bytes the receive ring
// holds
func (s *Socket) PayloadRecvCapacity() int {
	return s.rx.PayloadCapacity()
}

// PayloadSendCapacity returns the number of payload bytes the transmit ring
// holds
func (s *Socket) PayloadSendCapacity() int {
	return s.tx.PayloadCapacity()
}

// SendSlice queues a copy of data for transmission to remote.
//
// It returns types.ErrExhausted if the transmit ring is full right now,
// types.ErrUnaddressable if the socket is unbound or remote is incomplete,
// and types.ErrTruncated if data can never fit in the ring
func (s *Socket) SendSlice(data []byte, remote types.FullAddress) error {
	if !s.IsOpen() {
		return types.ErrUnaddressable
	}

	if !remote.IsSpecified() {
		return types.ErrUnaddressable
	}

	return s.tx.EnqueueSlice(data, remote)
}

// RecvSlice copies the oldest queued datagram into buf and returns the number
// of bytes copied and the sender. A datagram longer than buf is truncated to
// fit; the rest of it is discarded.
//
// It returns types.ErrExhausted if no datagram is queued
func (s *Socket) RecvSlice(buf []byte) (int, types.FullAddress, error) {
	from, payload, err := s.rx.Dequeue()
	if err != nil {
		return 0, types.FullAddress{}, err
	}

	return copy(buf, payload), from, nil
}

// RegisterRecvWaker arranges for w to be asserted once the socket may have a
// datagram to receive. It replaces a previously registered receive waker
func (s *Socket) RegisterRecvWaker(w waiter.Waker) {
	s.rxWaker.Register(w)
}

// RegisterSendWaker arranges for w to be asserted once the socket may have
// room to send. It replaces a previously registered send waker
func (s *Socket) RegisterSendWaker(w waiter.Waker) {
	s.txWaker.Register(w)
}

// Accepts returns true if an inbound datagram from src to dst is addressed to
// this socket
func (s *Socket) Accepts(src, dst types.FullAddress) bool {
	if !s.IsOpen() || s.endpoint.Port != dst.Port {
		return false
	}

	if !s.endpoint.Address.Unspecified() && s.endpoint.Address != dst.Address {
		return false
	}

	return true
}

// Process queues an inbound datagram and wakes the receiver. The datagram is
// dropped with types.ErrExhausted if the receive ring has no room for it right
// now, or types.ErrTruncated if it never would
func (s *Socket) Process(src types.FullAddress, payload []byte) error {
	if err := s.rx.EnqueueSlice(payload, src); err != nil {
		return err
	}

	s.rxWaker.Wake()
	return nil
}

// EmitFunc transmits one datagram. It must not retain payload
type EmitFunc func(local, remote types.FullAddress, hopLimit uint8, payload []byte) error

// Dispatch hands the oldest queued datagram to emit and removes it if emit
// succeeds, waking the sender. It returns types.ErrExhausted if nothing is
// queued and emit's error otherwise
func (s *Socket) Dispatch(emit EmitFunc) error {
	err := s.tx.DequeueWith(func(remote types.FullAddress, payload []byte) error {
		return emit(s.endpoint, remote, s.hopLimit, payload)
	})
	if err != nil {
		return err
	}

	s.txWaker.Wake()
	return nil
}

// Release drops the socket's references to its ring storage and wakes both
// directions so that anyone still waiting notices the socket is gone. The
// socket has zero capacity afterwards
func (s *Socket) Release() {
	s.endpoint = types.FullAddress{}
	s.rx.Release()
	s.tx.Release()

	s.rxWaker.Wake()
	s.txWaker.Wake()
}
