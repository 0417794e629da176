package core

import "testing"

func TestNewAcceptorFromAddressSelectsScheme(t *testing.T) {
	cases := []struct {
		addr string
		want string
	}{
		{"inprocess:bus", "*core.InProcessAcceptor"},
		{"worker-pool", "*core.InProcessAcceptor"},
		{"ipc:/tmp/msgbus.sock", "*core.LocalIPCAcceptor"},
		{"/tmp/msgbus.sock", "*core.LocalIPCAcceptor"},
		{"127.0.0.1:0", "*core.TCPAcceptor"},
	}
	for _, tc := range cases {
		a, err := NewAcceptorFromAddress(tc.addr)
		if err != nil {
			t.Fatalf("address %q: unexpected error: %v", tc.addr, err)
		}
		got := typeName(a)
		if got != tc.want {
			t.Errorf("address %q: got acceptor type %s, want %s", tc.addr, got, tc.want)
		}
		_ = a.Close()
	}
}

func TestNewAcceptorFromAddressRejectsMQTTScheme(t *testing.T) {
	if _, err := NewAcceptorFromAddress("tcp://broker:1883"); err == nil {
		t.Fatal("expected an error routing an MQTT broker URL through the acceptor factory")
	}
}

func typeName(a Acceptor) string {
	switch a.(type) {
	case *InProcessAcceptor:
		return "*core.InProcessAcceptor"
	case *LocalIPCAcceptor:
		return "*core.LocalIPCAcceptor"
	case *TCPAcceptor:
		return "*core.TCPAcceptor"
	default:
		return "unknown"
	}
}
