package ports

import (
	"testing"

	"github.com/YaoZengzeng/yunet/types"
)

const (
	udp       = types.TransportProtocolNumber(17)
	fakeAddr1 = types.Address("\x0a\x00\x00\x01")
	fakeAddr2 = types.Address("\x0a\x00\x00\x02")
)

func TestPickEphemeralPort(t *testing.T) {
	pm := NewPortManager()
	customErr := &types.Error{}
	for _, test := range []struct {
		name     string
		f        func(port uint16) (bool, error)
		wantErr  error
		wantPort uint16
	}{
		{
			name: "no-port-available",
			f: func(port uint16) (bool, error) {
				return false, nil
			},
			wantErr: types.ErrNoPortAvailable,
		},
		{
			name: "port-tester-error",
			f: func(port uint16) (bool, error) {
				return false, customErr
			},
			wantErr: customErr,
		},
		{
			name: "only-port-16042-available",
			f: func(port uint16) (bool, error) {
				if port == FirstEphemeral+42 {
					return true, nil
				}
				return false, nil
			},
			wantPort: FirstEphemeral + 42,
		},
		{
			name: "only-port-65535-available",
			f: func(port uint16) (bool, error) {
				return port == 65535, nil
			},
			wantPort: 65535,
		},
		{
			name: "only-port-under-16000-available",
			f: func(port uint16) (bool, error) {
				if port < FirstEphemeral {
					return true, nil
				}
				return false, nil
			},
			wantErr: types.ErrNoPortAvailable,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			if port, err := pm.PickEphemeralPort(test.f); port != test.wantPort || err != test.wantErr {
				t.Errorf("PickEphemeralPort(...) = (port %d, err %v); want (port %d, err %v)", port, err, test.wantPort, test.wantErr)
			}
		})
	}
}

func TestPortReservation(t *testing.T) {
	pm := NewPortManager()
	for _, test := range []struct {
		port    uint16
		addr    types.Address
		release bool
		want    error
	}{
		{port: 80, addr: fakeAddr1, want: nil},
		{port: 80, addr: fakeAddr2, want: nil},
		{port: 80, addr: fakeAddr1, want: types.ErrPortInUse},
		{port: 80, addr: anyIPAddress, want: types.ErrPortInUse},
		{port: 22, addr: anyIPAddress, want: nil},
		{port: 22, addr: fakeAddr1, want: types.ErrPortInUse},
		{port: 22, addr: anyIPAddress, release: true},
		{port: 22, addr: fakeAddr1, want: nil},
	} {
		if test.release {
			pm.ReleasePort(udp, test.addr, test.port)
			if pm.IsReserved(udp, test.addr, test.port) {
				t.Fatalf("ReleasePort(%v, %d) left the port reserved", test.addr, test.port)
			}
			continue
		}

		port, err := pm.ReservePort(udp, test.addr, test.port)
		if err != test.want {
			t.Fatalf("ReservePort(%v, %d) = %v, want %v", test.addr, test.port, err, test.want)
		}
		if err == nil && port != test.port {
			t.Fatalf("ReservePort(%v, %d) reserved port %d", test.addr, test.port, port)
		}
	}
}

func TestReserveEphemeral(t *testing.T) {
	pm := NewPortManager()
	port, err := pm.ReservePort(udp, anyIPAddress, 0)
	if err != nil {
		t.Fatalf("ReservePort failed: %v", err)
	}
	if port < FirstEphemeral {
		t.Fatalf("ReservePort picked %d, below the ephemeral range", port)
	}
	if !pm.IsReserved(udp, anyIPAddress, port) {
		t.Fatalf("ephemeral port %d not reserved", port)
	}

	if _, err := pm.ReservePort(udp, fakeAddr1, port); err != types.ErrPortInUse {
		t.Fatalf("ReservePort on ephemeral port = %v, want %v", err, types.ErrPortInUse)
	}
}
