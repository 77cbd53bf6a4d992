package gonet

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/YaoZengzeng/yunet/buffer"
	"github.com/YaoZengzeng/yunet/checker"
	"github.com/YaoZengzeng/yunet/header"
	"github.com/YaoZengzeng/yunet/link/channel"
	"github.com/YaoZengzeng/yunet/network/ipv4"
	"github.com/YaoZengzeng/yunet/stack"
	"github.com/YaoZengzeng/yunet/transport/udp"
	"github.com/YaoZengzeng/yunet/types"
	"github.com/YaoZengzeng/yunet/waiter"
)

const (
	stackAddr = "\x0a\x00\x00\x01"
	stackPort = 1234
	testAddr  = "\x0a\x00\x00\x02"
	testPort  = 4096

	defaultMTU = 1500
	nicId      = 1
)

var (
	localEndpoint  = types.FullAddress{Port: stackPort}
	remoteEndpoint = types.FullAddress{Address: testAddr, Port: testPort}
	senderEndpoint = types.FullAddress{Nic: nicId, Address: testAddr, Port: testPort}
)

type testContext struct {
	t      *testing.T
	linkEp *channel.Endpoint
	s      *stack.Stack
}

// newTestContext builds a stack with one nic and starts its driver for the
// duration of the test
func newTestContext(t *testing.T, linkQueue int) *testContext {
	s := stack.New(stack.Options{})

	linkEp := channel.New(linkQueue, defaultMTU)
	if err := s.CreateNic(nicId, linkEp); err != nil {
		t.Fatalf("CreateNic failed: %v", err)
	}

	if err := s.AddAddress(nicId, stackAddr); err != nil {
		t.Fatalf("AddAddress failed: %v", err)
	}

	s.SetRouteTable([]types.Route{
		{
			Destination: types.Address("\x00\x00\x00\x00"),
			Mask:        types.Address("\x00\x00\x00\x00"),
			Nic:         nicId,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &testContext{
		t:      t,
		s:      s,
		linkEp: linkEp,
	}
}

func (c *testContext) newBoundSocket(cfg Config) *UDPSocket {
	u := NewUDPSocketWithConfig(c.s, cfg)
	if err := u.Bind(localEndpoint); err != nil {
		c.t.Fatalf("Bind failed: %v", err)
	}
	c.t.Cleanup(u.Release)
	return u
}

func (c *testContext) sendPacket(payload []byte) {
	buf := buffer.NewView(header.IPv4MinimumSize + header.UDPMinimumSize + len(payload))
	copy(buf[header.IPv4MinimumSize+header.UDPMinimumSize:], payload)

	ip := header.IPv4(buf)
	ip.Encode(&header.IPv4Fields{
		IHL:         header.IPv4MinimumSize,
		TotalLength: uint16(len(buf)),
		TTL:         64,
		Protocol:    uint8(udp.ProtocolNumber),
		SrcAddr:     testAddr,
		DstAddr:     stackAddr,
	})
	ip.SetChecksum(^ip.CalculateChecksum())

	// No udp checksum
	header.UDP(buf[header.IPv4MinimumSize:]).Encode(&header.UDPFields{
		SrcPort: testPort,
		DstPort: stackPort,
		Length:  uint16(header.UDPMinimumSize + len(payload)),
	})

	c.linkEp.Inject(ipv4.ProtocolNumber, buf)
}

func (c *testContext) getPayload() []byte {
	c.t.Helper()

	select {
	case p := <-c.linkEp.C:
		b := append(append([]byte(nil), p.Header...), p.Payload...)
		checker.IPv4(c.t, b, checker.SrcAddr(stackAddr), checker.DstAddr(testAddr), checker.UDP(checker.DstPort(testPort)))
		return header.UDP(header.IPv4(b).Payload()).Payload()

	case <-time.After(time.Second):
		c.t.Fatalf("Packet wasn't written out")
	}

	return nil
}

type recvResult struct {
	n    int
	from types.FullAddress
	err  error
}

func recvAsync(ctx context.Context, u *UDPSocket, buf []byte) <-chan recvResult {
	ch := make(chan recvResult, 1)
	go func() {
		n, from, err := u.RecvFrom(ctx, buf)
		ch <- recvResult{n, from, err}
	}()
	return ch
}

func TestNewUDPSocketWithConfig(t *testing.T) {
	c := newTestContext(t, 16)
	cfg := Config{RxPayloadSize: 100, TxPayloadSize: 200, RxPackets: 3, TxPackets: 4}
	u := NewUDPSocketWithConfig(c.s, cfg)
	defer u.Release()

	for _, test := range []struct {
		name string
		got  int
		want int
	}{
		{"PayloadRecvCapacity", u.PayloadRecvCapacity(), 100},
		{"PayloadSendCapacity", u.PayloadSendCapacity(), 200},
		{"PacketRecvCapacity", u.PacketRecvCapacity(), 3},
		{"PacketSendCapacity", u.PacketSendCapacity(), 4},
	} {
		if test.got != test.want {
			t.Errorf("%s() = %d, want %d", test.name, test.got, test.want)
		}
	}

	if u.IsOpen() || u.CanRecv() || !u.CanSend() {
		t.Fatalf("new socket: IsOpen %v CanRecv %v CanSend %v", u.IsOpen(), u.CanRecv(), u.CanSend())
	}

	u.SetHopLimit(9)
	if h := u.HopLimit(); h != 9 {
		t.Fatalf("HopLimit() = %d, want 9", h)
	}
}

func TestRecvFromWaitsForData(t *testing.T) {
	c := newTestContext(t, 16)
	u := c.newBoundSocket(DefaultConfig())

	for i := 0; i < 50; i++ {
		payload := []byte(fmt.Sprintf("datagram %d", i))
		buf := make([]byte, 64)
		ch := recvAsync(context.Background(), u, buf)

		// Vary whether the datagram arrives before or after the
		// receiver goes to sleep
		if i%2 == 0 {
			time.Sleep(time.Millisecond)
		}
		c.sendPacket(payload)

		select {
		case r := <-ch:
			if r.err != nil {
				t.Fatalf("RecvFrom failed: %v", r.err)
			}
			if r.from != senderEndpoint || !bytes.Equal(buf[:r.n], payload) {
				t.Fatalf("RecvFrom = (%q, %v), want (%q, %v)", buf[:r.n], r.from, payload, senderEndpoint)
			}
		case <-time.After(time.Second):
			t.Fatalf("RecvFrom missed datagram %d", i)
		}
	}
}

func TestRecvFromWakeWithoutData(t *testing.T) {
	c := newTestContext(t, 16)
	u := c.newBoundSocket(DefaultConfig())

	buf := make([]byte, 64)
	ch := recvAsync(context.Background(), u, buf)
	time.Sleep(10 * time.Millisecond)

	// Close and Bind both wake the receiver with nothing to read
	u.Close()
	if err := u.Bind(localEndpoint); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	select {
	case r := <-ch:
		t.Fatalf("RecvFrom returned without a datagram: %+v", r)
	case <-time.After(20 * time.Millisecond):
	}

	payload := []byte("after wake")
	c.sendPacket(payload)

	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("RecvFrom failed: %v", r.err)
		}
		if r.n != len(payload) || r.from != senderEndpoint || !bytes.Equal(buf[:r.n], payload) {
			t.Fatalf("RecvFrom = (%d, %v, %q), want (%d, %v, %q)", r.n, r.from, buf[:r.n], len(payload), senderEndpoint, payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("RecvFrom missed the datagram")
	}
}

func TestWaitRetriesAttempt(t *testing.T) {
	c := newTestContext(t, 16)
	u := c.newBoundSocket(DefaultConfig())

	// Every wake but the last finds the socket still not ready
	attempts := 0
	err := u.wait(context.Background(), func(sock *udp.Socket, w waiter.Waker) error {
		attempts++
		if attempts < 3 {
			sock.RegisterRecvWaker(w)
			w.Assert()
			return types.ErrExhausted
		}
		return nil
	})
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempt ran %d times, want 3", attempts)
	}
}

func TestRecvFromCopy(t *testing.T) {
	c := newTestContext(t, 16)
	u := c.newBoundSocket(DefaultConfig())

	payload := []byte("0123456789")
	c.sendPacket(payload)

	buf := make([]byte, 20)
	n, from, err := u.RecvFrom(context.Background(), buf)
	if err != nil {
		t.Fatalf("RecvFrom failed: %v", err)
	}
	if n != len(payload) || !bytes.Equal(buf[:n], payload) {
		t.Fatalf("RecvFrom = (%d, %q), want (%d, %q)", n, buf[:n], len(payload), payload)
	}
	if from != senderEndpoint {
		t.Fatalf("RecvFrom sender = %v, want %v", from, senderEndpoint)
	}
	if !bytes.Equal(buf[n:], make([]byte, 10)) {
		t.Fatalf("RecvFrom wrote past the datagram: %x", buf[n:])
	}
}

func TestSendTo(t *testing.T) {
	c := newTestContext(t, 16)
	u := c.newBoundSocket(DefaultConfig())

	payload := []byte("hello")
	if err := u.SendTo(context.Background(), payload, remoteEndpoint); err != nil {
		t.Fatalf("SendTo failed: %v", err)
	}

	if got := c.getPayload(); !bytes.Equal(got, payload) {
		t.Fatalf("sent payload = %q, want %q", got, payload)
	}
}

func TestSendToErrors(t *testing.T) {
	c := newTestContext(t, 16)

	unbound := NewUDPSocketWithConfig(c.s, DefaultConfig())
	defer unbound.Release()

	bound := c.newBoundSocket(Config{RxPayloadSize: 64, TxPayloadSize: 64, RxPackets: 1, TxPackets: 1})

	for _, test := range []struct {
		name    string
		u       *UDPSocket
		size    int
		remote  types.FullAddress
		wantErr error
	}{
		{"unbound", unbound, 8, remoteEndpoint, types.ErrUnaddressable},
		{"no-remote-port", bound, 8, types.FullAddress{Address: testAddr}, types.ErrUnaddressable},
		{"unspecified-remote", bound, 8, types.FullAddress{Port: testPort}, types.ErrUnaddressable},
		{"larger-than-ring", bound, 65, remoteEndpoint, types.ErrTruncated},
	} {
		t.Run(test.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			if err := test.u.SendTo(ctx, make([]byte, test.size), test.remote); err != test.wantErr {
				t.Fatalf("SendTo = %v, want %v", err, test.wantErr)
			}
		})
	}
}

func TestSendToWaitsForRoom(t *testing.T) {
	// The link holds one packet and the socket one more
	c := newTestContext(t, 1)
	u := c.newBoundSocket(Config{RxPayloadSize: 64, TxPayloadSize: 64, RxPackets: 1, TxPackets: 1})

	ctx := context.Background()
	for _, p := range []string{"one", "two"} {
		if err := u.SendTo(ctx, []byte(p), remoteEndpoint); err != nil {
			t.Fatalf("SendTo(%q) failed: %v", p, err)
		}
		// Let the driver move "one" to the link before "two" is queued
		time.Sleep(10 * time.Millisecond)
	}

	done := make(chan error, 1)
	go func() {
		done <- u.SendTo(ctx, []byte("three"), remoteEndpoint)
	}()

	select {
	case err := <-done:
		t.Fatalf("SendTo returned %v with the transmit ring full", err)
	case <-time.After(50 * time.Millisecond):
	}

	for _, want := range []string{"one", "two", "three"} {
		if got := c.getPayload(); string(got) != want {
			t.Fatalf("sent payload = %q, want %q", got, want)
		}

		if want == "one" {
			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("SendTo failed: %v", err)
				}
			case <-time.After(time.Second):
				t.Fatalf("SendTo didn't resume once the ring drained")
			}
		}
	}
}

func TestRecvFromCancel(t *testing.T) {
	c := newTestContext(t, 16)
	u := c.newBoundSocket(DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, _, err := u.RecvFrom(ctx, make([]byte, 64)); err != context.DeadlineExceeded {
		t.Fatalf("RecvFrom = %v, want %v", err, context.DeadlineExceeded)
	}

	// A fresh attempt after the abandoned one sees new data
	c.sendPacket([]byte("after cancel"))

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()

	buf := make([]byte, 64)
	n, _, err := u.RecvFrom(ctx2, buf)
	if err != nil {
		t.Fatalf("RecvFrom failed: %v", err)
	}
	if string(buf[:n]) != "after cancel" {
		t.Fatalf("RecvFrom = %q, want %q", buf[:n], "after cancel")
	}
}

func TestRecvFromReadyIgnoresDoneContext(t *testing.T) {
	c := newTestContext(t, 16)
	u := c.newBoundSocket(DefaultConfig())

	c.sendPacket([]byte("queued"))
	for !u.CanRecv() {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	buf := make([]byte, 64)
	if n, _, err := u.RecvFrom(ctx, buf); err != nil || string(buf[:n]) != "queued" {
		t.Fatalf("RecvFrom = (%q, %v), want (%q, nil)", buf[:n], err, "queued")
	}
}

func TestReleaseWhileBlocked(t *testing.T) {
	c := newTestContext(t, 16)
	u := NewUDPSocketWithConfig(c.s, DefaultConfig())
	if err := u.Bind(localEndpoint); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	ch := recvAsync(context.Background(), u, make([]byte, 64))
	time.Sleep(10 * time.Millisecond)

	u.Release()

	select {
	case r := <-ch:
		if r.err != types.ErrInvalidHandle {
			t.Fatalf("RecvFrom = %v, want %v", r.err, types.ErrInvalidHandle)
		}
	case <-time.After(time.Second):
		t.Fatalf("RecvFrom still blocked after Release")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	c := newTestContext(t, 16)
	u := NewUDPSocketWithConfig(c.s, DefaultConfig())
	if err := u.Bind(localEndpoint); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	u.Close()
	u.Close()
	if u.IsOpen() {
		t.Fatalf("IsOpen() = true after Close")
	}

	u.Release()
	u.Release()

	if n := c.s.NumSockets(); n != 0 {
		t.Fatalf("NumSockets() = %d after Release, want 0", n)
	}
	if err := u.Bind(localEndpoint); err != types.ErrInvalidHandle {
		t.Fatalf("Bind after Release = %v, want %v", err, types.ErrInvalidHandle)
	}
	if err := u.SendTo(context.Background(), []byte("x"), remoteEndpoint); err != types.ErrInvalidHandle {
		t.Fatalf("SendTo after Release = %v, want %v", err, types.ErrInvalidHandle)
	}

	// The port is free again
	other := c.newBoundSocket(DefaultConfig())
	if ep := other.Endpoint(); ep.Port != stackPort {
		t.Fatalf("Endpoint() = %v, want port %d", ep, stackPort)
	}
}

func TestReleasedStorageUntouched(t *testing.T) {
	c := newTestContext(t, 16)

	rx := make([]byte, 64)
	tx := make([]byte, 64)
	u := NewUDPSocket(c.s, make([]PacketMetadata, 4), rx, make([]PacketMetadata, 4), tx)
	if err := u.Bind(localEndpoint); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	u.Release()

	for i := 0; i < 8; i++ {
		c.sendPacket([]byte("traffic for a released socket"))
	}

	// Once a new socket on the same port sees traffic, the driver has
	// processed the burst
	marker := c.newBoundSocket(DefaultConfig())
	c.sendPacket([]byte("marker"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, _, err := marker.RecvFrom(ctx, make([]byte, 64)); err != nil {
		t.Fatalf("RecvFrom on the new socket failed: %v", err)
	}

	zero := make([]byte, 64)
	if !bytes.Equal(rx, zero) || !bytes.Equal(tx, zero) {
		t.Fatalf("storage written after Release: rx %x tx %x", rx, tx)
	}
}

func TestEcho(t *testing.T) {
	c := newTestContext(t, 16)
	u := c.newBoundSocket(DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	c.sendPacket([]byte("ping"))

	buf := make([]byte, 64)
	n, from, err := u.RecvFrom(ctx, buf)
	if err != nil {
		t.Fatalf("RecvFrom failed: %v", err)
	}
	if err := u.SendTo(ctx, buf[:n], from); err != nil {
		t.Fatalf("SendTo failed: %v", err)
	}

	if got := c.getPayload(); string(got) != "ping" {
		t.Fatalf("echoed payload = %q, want %q", got, "ping")
	}
}
