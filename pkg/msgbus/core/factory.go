package core

import (
	"fmt"
	"strings"
)

// NewAcceptorFromAddress parses one opaque address string into a listening
// Acceptor per spec §6's "Acceptor address schemes": "inprocess:<name>" or a
// bare free-form token for direct/in-process, "ipc:<path>" or a path
// starting with "/" for local-IPC, and anything else (host[:port]) for the
// IPv4 remote scheme with DefaultRemotePort when the port is omitted.
func NewAcceptorFromAddress(addr string) (Acceptor, error) {
	switch {
	case strings.HasPrefix(addr, "inprocess:"):
		return NewInProcessAcceptor(strings.TrimPrefix(addr, "inprocess:")), nil
	case strings.HasPrefix(addr, "ipc:"):
		return NewLocalIPCAcceptor(strings.TrimPrefix(addr, "ipc:")), nil
	case strings.HasPrefix(addr, "/"):
		return NewLocalIPCAcceptor(addr), nil
	case strings.Contains(addr, "://"):
		return nil, fmt.Errorf("acceptor address %q: MQTT is a bridge connection, not a listening acceptor; use NewMQTTBridgeFromAddress", addr)
	case strings.Contains(addr, ".") || strings.Contains(addr, ":"):
		return NewTCPAcceptor(addr)
	default:
		return NewInProcessAcceptor(addr), nil
	}
}

// NewMQTTBridgeFromAddress dials the MQTT bridge connection kind from the
// "tcp://host:port" broker URL (spec §6), optionally carrying a client id
// via a "user@" prefix ("user@tcp://host:port"), and publishing/subscribing
// on topic.
func NewMQTTBridgeFromAddress(addr string, topic MQTTTopic) (*MQTTBridgeConnection, error) {
	brokerURL := addr
	clientID := ""
	if at := strings.Index(addr, "@"); at >= 0 && strings.Contains(addr[at:], "://") {
		clientID = addr[:at]
		brokerURL = addr[at+1:]
	}
	return NewMQTTBridgeConnection(MQTTBrokerOptions{
		BrokerURL: brokerURL,
		ClientID:  clientID,
		Topic:     topic,
	})
}
