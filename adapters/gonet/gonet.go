// Package gonet provides blocking, context-aware datagram sockets on top of
// a yunet stack.
//
// A UDPSocket operation first tries to complete right away under the stack
// lock. When the socket isn't ready it registers a waker with the socket and
// sleeps until the stack asserts it or the context is done, then tries again
// from scratch. Only one goroutine at a time may wait to receive, and one to
// send, on the same socket
package gonet

import (
	"context"
	"sync/atomic"

	"github.com/YaoZengzeng/yunet/buffer"
	"github.com/YaoZengzeng/yunet/sleep"
	"github.com/YaoZengzeng/yunet/stack"
	"github.com/YaoZengzeng/yunet/transport/udp"
	"github.com/YaoZengzeng/yunet/types"
	"github.com/YaoZengzeng/yunet/waiter"
)

// PacketMetadata is the per-datagram record stored in the metadata slices
// given to NewUDPSocket
type PacketMetadata = udp.PacketMetadata

const (
	wakerReady = iota
	wakerCancel
)

// UDPSocket is a datagram socket registered with a stack
type UDPSocket struct {
	stack    *stack.Stack
	handle   stack.SocketHandle
	released atomic.Bool
}

// NewUDPSocket creates an unbound socket in s whose rings live in the given
// storage. The stack borrows the four slices until Release returns; the
// caller must not touch them in the meantime
func NewUDPSocket(s *stack.Stack, rxMeta []PacketMetadata, rxBuffer []byte, txMeta []PacketMetadata, txBuffer []byte) *UDPSocket {
	if s == nil {
		panic("gonet: nil stack")
	}

	sock := udp.NewSocket(
		buffer.NewPacketBuffer(rxMeta, rxBuffer),
		buffer.NewPacketBuffer(txMeta, txBuffer),
	)

	return &UDPSocket{
		stack:  s,
		handle: s.AddSocket(sock),
	}
}

// NewUDPSocketWithConfig creates an unbound socket in s with freshly
// allocated storage
func NewUDPSocketWithConfig(s *stack.Stack, cfg Config) *UDPSocket {
	return NewUDPSocket(s,
		make([]PacketMetadata, cfg.RxPackets), make([]byte, cfg.RxPayloadSize),
		make([]PacketMetadata, cfg.TxPackets), make([]byte, cfg.TxPayloadSize),
	)
}

// Release removes the socket from the stack, releasing its port and its
// storage. Operations blocked on the socket return types.ErrInvalidHandle,
// as does every later call. Calling Release more than once is a no-op
func (u *UDPSocket) Release() {
	if u.released.Swap(true) {
		return
	}
	u.stack.RemoveSocket(u.handle)
}

func (u *UDPSocket) withSocket(f func(sock *udp.Socket, c *stack.Context)) error {
	return u.stack.WithSocket(u.handle, f)
}

// Bind binds the socket to a local endpoint. Port zero picks an ephemeral
// port and an unspecified address binds every local address
func (u *UDPSocket) Bind(endpoint types.FullAddress) error {
	var err error
	if e := u.withSocket(func(sock *udp.Socket, c *stack.Context) {
		err = c.Bind(sock, endpoint)
	}); e != nil {
		return e
	}
	return err
}

// Close unbinds the socket and drops the datagrams queued on it. The socket
// stays registered and may be bound again
func (u *UDPSocket) Close() {
	u.withSocket(func(sock *udp.Socket, c *stack.Context) {
		c.Close(sock)
	})
}

// Endpoint returns the bound local endpoint
func (u *UDPSocket) Endpoint() (endpoint types.FullAddress) {
	u.withSocket(func(sock *udp.Socket, _ *stack.Context) {
		endpoint = sock.Endpoint()
	})
	return endpoint
}

// HopLimit returns the ttl of outgoing datagrams, or zero when the stack
// default applies
func (u *UDPSocket) HopLimit() (hopLimit uint8) {
	u.withSocket(func(sock *udp.Socket, _ *stack.Context) {
		hopLimit = sock.HopLimit()
	})
	return hopLimit
}

// SetHopLimit sets the ttl of outgoing datagrams. Zero restores the stack
// default
func (u *UDPSocket) SetHopLimit(hopLimit uint8) {
	u.withSocket(func(sock *udp.Socket, _ *stack.Context) {
		sock.SetHopLimit(hopLimit)
	})
}

// IsOpen returns true if the socket is bound to a port
func (u *UDPSocket) IsOpen() (open bool) {
	u.withSocket(func(sock *udp.Socket, _ *stack.Context) {
		open = sock.IsOpen()
	})
	return open
}

// CanSend returns true if the transmit ring has a free record
func (u *UDPSocket) CanSend() (ok bool) {
	u.withSocket(func(sock *udp.Socket, _ *stack.Context) {
		ok = sock.CanSend()
	})
	return ok
}

// CanRecv returns true if a datagram is waiting to be received
func (u *UDPSocket) CanRecv() (ok bool) {
	u.withSocket(func(sock *udp.Socket, _ *stack.Context) {
		ok = sock.CanRecv()
	})
	return ok
}

// PacketRecvCapacity returns the number of datagrams the receive ring holds
func (u *UDPSocket) PacketRecvCapacity() (n int) {
	u.withSocket(func(sock *udp.Socket, _ *stack.Context) {
		n = sock.PacketRecvCapacity()
	})
	return n
}

// PacketSendCapacity returns the number of datagrams the transmit ring holds
func (u *UDPSocket) PacketSendCapacity() (n int) {
	u.withSocket(func(sock *udp.Socket, _ *stack.Context) {
		n = sock.PacketSendCapacity()
	})
	return n
}

// PayloadRecvCapacity returns the number of payload bytes the receive ring
// holds
func (u *UDPSocket) PayloadRecvCapacity() (n int) {
	u.withSocket(func(sock *udp.Socket, _ *stack.Context) {
		n = sock.PayloadRecvCapacity()
	})
	return n
}

// PayloadSendCapacity returns the number of payload bytes the transmit ring
// holds
func (u *UDPSocket) PayloadSendCapacity() (n int) {
	u.withSocket(func(sock *udp.Socket, _ *stack.Context) {
		n = sock.PayloadSendCapacity()
	})
	return n
}

// MaxPayloadSize returns the largest datagram that reaches remote without
// fragmentation
func (u *UDPSocket) MaxPayloadSize(remote types.FullAddress) (int, error) {
	var (
		n   int
		err error
	)
	if e := u.withSocket(func(_ *udp.Socket, c *stack.Context) {
		n, err = c.MaxPayloadSize(remote)
	}); e != nil {
		return 0, e
	}
	return n, err
}

// RecvFrom waits for a datagram and copies it into buf. It returns the number
// of bytes copied and the sender. A datagram longer than buf is truncated and
// the rest of it is lost.
//
// It returns ctx.Err() if ctx is done first, and types.ErrInvalidHandle if
// the socket is released
func (u *UDPSocket) RecvFrom(ctx context.Context, buf []byte) (int, types.FullAddress, error) {
	var (
		n    int
		from types.FullAddress
	)
	err := u.wait(ctx, func(sock *udp.Socket, w waiter.Waker) error {
		var err error
		n, from, err = sock.RecvSlice(buf)
		if err == types.ErrExhausted {
			sock.RegisterRecvWaker(w)
		}
		return err
	})
	if err != nil {
		return 0, types.FullAddress{}, err
	}

	return n, from, nil
}

// SendTo queues buf for transmission to remote, waiting for room in the
// transmit ring if needed.
//
// It returns types.ErrUnaddressable if the socket is unbound or remote is
// incomplete, types.ErrTruncated if buf can never fit in the transmit ring,
// ctx.Err() if ctx is done before there is room, and types.ErrInvalidHandle
// if the socket is released
func (u *UDPSocket) SendTo(ctx context.Context, buf []byte, remote types.FullAddress) error {
	return u.wait(ctx, func(sock *udp.Socket, w waiter.Waker) error {
		err := sock.SendSlice(buf, remote)
		if err == types.ErrExhausted {
			sock.RegisterSendWaker(w)
		}
		return err
	})
}

// wait runs attempt under the stack lock until it returns something other
// than types.ErrExhausted. attempt registers w before reporting
// types.ErrExhausted, so that a readiness change after the lock is dropped
// still wakes the sleeper
func (u *UDPSocket) wait(ctx context.Context, attempt func(sock *udp.Socket, w waiter.Waker) error) error {
	var (
		sleeper sleep.Sleeper
		ready   sleep.Waker
		cancel  sleep.Waker
	)
	sleeper.AddWaker(&ready, wakerReady)
	sleeper.AddWaker(&cancel, wakerCancel)
	defer sleeper.Done()

	stop := context.AfterFunc(ctx, cancel.Assert)
	defer stop()

	for {
		var err error
		if e := u.withSocket(func(sock *udp.Socket, _ *stack.Context) {
			err = attempt(sock, &ready)
		}); e != nil {
			return e
		}

		if err != types.ErrExhausted {
			return err
		}

		if id, _ := sleeper.Fetch(true); id == wakerCancel {
			return ctx.Err()
		}
	}
}
