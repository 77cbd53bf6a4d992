//go:build linux

// Command tun_udp_echo runs a udp echo server on a TUN device.
//
//	ip tuntap add dev tun0 mode tun
//	ip link set tun0 up
//	ip addr add 10.1.0.2/24 dev tun0
//	tun_udp_echo -tun tun0 -addr 10.1.0.1 -port 12345
package main

import (
	"context"
	"flag"
	"math"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/YaoZengzeng/yunet/adapters/gonet"
	"github.com/YaoZengzeng/yunet/link/sniffer"
	"github.com/YaoZengzeng/yunet/link/tundev"
	"github.com/YaoZengzeng/yunet/stack"
	"github.com/YaoZengzeng/yunet/types"
)

const nicId = 1

func main() {
	tunName := flag.String("tun", "tun0", "name of the tun device")
	address := flag.String("addr", "10.1.0.1", "local ipv4 address of the stack")
	port := flag.Uint("port", 12345, "udp port to echo on")
	sniff := flag.Bool("sniff", false, "log every packet")
	flag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	localPort, err := checkPort(*port)
	if err != nil {
		log.Fatal("bad -port", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, *tunName, *address, localPort, *sniff); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("tun_udp_echo failed", zap.Error(err))
	}
}

// checkPort validates a port given on the command line. Zero binds an
// ephemeral port
func checkPort(port uint) (uint16, error) {
	if port > math.MaxUint16 {
		return 0, errors.Errorf("port %d out of range", port)
	}
	return uint16(port), nil
}

func run(ctx context.Context, log *zap.Logger, tunName, address string, port uint16, sniff bool) error {
	// Parse the IP address. Only ipv4 is supported
	parsed := net.ParseIP(address).To4()
	if parsed == nil {
		return errors.Errorf("bad ipv4 address: %v", address)
	}
	addr := types.Address(parsed)

	s := stack.New(stack.Options{Logger: log})

	tun, err := tundev.New(tunName, log)
	if err != nil {
		return err
	}
	defer tun.Close()

	var linkEp types.LinkEndpoint = tun
	if sniff {
		linkEp = sniffer.New(tun, log.Named("sniffer"))
	}

	if err := s.CreateNic(nicId, linkEp); err != nil {
		return errors.Wrap(err, "create nic")
	}

	if err := s.AddAddress(nicId, addr); err != nil {
		return errors.Wrap(err, "add address")
	}

	// Add default route
	s.SetRouteTable([]types.Route{
		{
			Destination: types.Address(strings.Repeat("\x00", len(addr))),
			Mask:        types.Address(strings.Repeat("\x00", len(addr))),
			Nic:         nicId,
		},
	})

	go s.Run(ctx)

	sock := gonet.NewUDPSocketWithConfig(s, gonet.DefaultConfig())
	defer sock.Release()

	if err := sock.Bind(types.FullAddress{Port: port}); err != nil {
		return errors.Wrapf(err, "bind port %d", port)
	}
	log.Info("echo server listening", zap.Stringer("local", sock.Endpoint()))

	buf := make([]byte, tun.MTU())
	for {
		n, from, err := sock.RecvFrom(ctx, buf)
		if err != nil {
			return errors.Wrap(err, "receive")
		}

		log.Debug("echoing datagram", zap.Stringer("from", from), zap.Int("size", n))
		if err := sock.SendTo(ctx, buf[:n], from); err != nil {
			return errors.Wrap(err, "send")
		}
	}
}
