//go:build linux

// Package tundev provides a link endpoint backed by a Linux TUN device. The
// device carries bare ip packets, so the endpoint has no link header
package tundev

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/YaoZengzeng/yunet/header"
	"github.com/YaoZengzeng/yunet/types"
)

// Endpoint is a link endpoint that reads and writes packets on a TUN device
type Endpoint struct {
	// fd is the non-blocking file descriptor of the device. wake is an
	// eventfd that interrupts the dispatch goroutine's poll on Close
	fd   int
	wake int
	mtu  uint32
	log  *zap.Logger

	// buf receives one packet at a time; it is only used by the dispatch
	// goroutine
	buf []byte

	// mu keeps the descriptors open while a write or the dispatch
	// goroutine uses them
	mu      sync.RWMutex
	closed  bool
	stopped chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// New opens the named TUN device. The device must already exist and be up
func New(name string, log *zap.Logger) (*Endpoint, error) {
	if log == nil {
		log = zap.NewNop()
	}

	mtu, err := getmtu(name)
	if err != nil {
		return nil, errors.Wrapf(err, "get mtu of %s", name)
	}

	fd, err := open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "open tun device %s", name)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "set %s non-blocking", name)
	}

	e, err := newEndpoint(fd, mtu, log.With(zap.String("tun", name)))
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return e, nil
}

// newEndpoint wraps an open non-blocking descriptor. The endpoint owns fd
// once newEndpoint succeeds
func newEndpoint(fd int, mtu uint32, log *zap.Logger) (*Endpoint, error) {
	wake, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, errors.Wrap(err, "create eventfd")
	}

	return &Endpoint{
		fd:   fd,
		wake: wake,
		mtu:  mtu,
		log:  log,
		buf:  make([]byte, mtu),
		done: make(chan struct{}),
	}, nil
}

// MTU implements types.LinkEndpoint.MTU. It returns the mtu of the device
func (e *Endpoint) MTU() uint32 {
	return e.mtu
}

// MaxHeaderLength returns the maximum size of the header. Given that it
// doesn't have a header, it just returns 0
func (e *Endpoint) MaxHeaderLength() uint16 {
	return 0
}

// LinkAddress returns the link address of this endpoint
func (e *Endpoint) LinkAddress() types.LinkAddress {
	return ""
}

// WritePacket writes an outbound packet to the device. It returns
// types.ErrWouldBlock if the device can't take it right now
func (e *Endpoint) WritePacket(hdr, payload []byte, protocol types.NetworkProtocolNumber) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return types.ErrInvalidEndpointState
	}

	iovs := [][]byte{hdr}
	if len(payload) > 0 {
		iovs = append(iovs, payload)
	}

	if _, err := unix.Writev(e.fd, iovs); err != nil {
		if errno, ok := err.(unix.Errno); ok {
			return TranslateErrno(errno)
		}
		return err
	}

	return nil
}

// Attach launches the goroutine that reads packets from the device and
// dispatches them via the provided dispatcher
func (e *Endpoint) Attach(dispatcher types.NetworkDispatcher) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.stopped != nil {
		return
	}

	e.stopped = make(chan struct{})
	go e.dispatchLoop(dispatcher, e.stopped)
}

// Close stops the dispatch goroutine, waits for it to exit and closes the
// device
func (e *Endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.done)

		var one [8]byte
		one[0] = 1
		unix.Write(e.wake, one[:])

		e.mu.RLock()
		stopped := e.stopped
		e.mu.RUnlock()
		if stopped != nil {
			<-stopped
		}

		e.mu.Lock()
		e.closed = true
		err = unix.Close(e.fd)
		unix.Close(e.wake)
		e.mu.Unlock()
	})
	return err
}

// dispatchLoop reads packets from the device in a loop and dispatches them to
// the network stack
func (e *Endpoint) dispatchLoop(d types.NetworkDispatcher, stopped chan struct{}) {
	defer close(stopped)

	for {
		select {
		case <-e.done:
			return
		default:
		}

		ok, err := e.dispatch(d)
		if err != nil {
			select {
			case <-e.done:
			default:
				e.log.Error("dispatch loop stopped", zap.Error(err))
			}
			return
		}
		if !ok {
			return
		}
	}
}

// dispatch reads one packet from the device and dispatches it
func (e *Endpoint) dispatch(d types.NetworkDispatcher) (bool, error) {
	n, err := blockingRead(e.fd, e.wake, e.buf, e.done)
	if err != nil {
		return false, err
	}

	if n <= 0 {
		return false, nil
	}

	// The device doesn't tell what the packet is, so guess from the
	// version nibble
	switch header.IPVersion(e.buf[:n]) {
	case header.IPv4Version:
		d.DeliverNetworkPacket(e, header.IPv4ProtocolNumber, e.buf[:n])
	default:
		e.log.Debug("dropping packet of unknown protocol", zap.Int("size", n))
	}

	return true, nil
}

// blockingRead reads from a non-blocking file descriptor. If no data is
// available, it blocks in poll until the descriptor becomes readable or wake
// is signalled. It returns zero bytes once done is closed
func blockingRead(fd, wake int, b []byte, done <-chan struct{}) (int, error) {
	for {
		n, err := unix.Read(fd, b)
		if err == nil {
			return n, nil
		}
		if err != unix.EAGAIN && err != unix.EINTR {
			return 0, errors.Wrap(err, "read")
		}

		select {
		case <-done:
			return 0, nil
		default:
		}

		fds := []unix.PollFd{
			{Fd: int32(fd), Events: unix.POLLIN},
			{Fd: int32(wake), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(fds, -1); err != nil && err != unix.EINTR {
			return 0, errors.Wrap(err, "poll")
		}
	}
}

// getmtu determines the MTU of a network interface device
func getmtu(name string) (uint32, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return 0, err
	}
	defer unix.Close(fd)

	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return 0, err
	}

	if err := unix.IoctlIfreq(fd, unix.SIOCGIFMTU, ifr); err != nil {
		return 0, err
	}

	return ifr.Uint32(), nil
}

// open opens the specified tun device and returns its file descriptor
func open(name string) (int, error) {
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}

	ifr, err := unix.NewIfreq(name)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}

	ifr.SetUint16(unix.IFF_TUN | unix.IFF_NO_PI)
	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr); err != nil {
		unix.Close(fd)
		return -1, err
	}

	return fd, nil
}
