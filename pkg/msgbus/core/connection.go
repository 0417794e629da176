// Package core implements the routing fabric (spec §4.2, C1) and the
// connection abstraction every other subsystem sits on top of (spec §4,
// "Connection abstraction"). It is grounded on the teacher library's
// Transport interface (Broadcast/Unicast/Listen/Close) and its
// poll/consume update loop in pkg/mcast/core/transport.go, generalized
// from one reliable-multicast transport to the bus's family of connection
// kinds (in-process, local-IPC, remote, stdio-tunnel, MQTT).
package core

import (
	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// ConnectionKind identifies the concrete transport behind a Connection,
// used for diagnostics and for the router's pending-connection bookkeeping.
type ConnectionKind uint8

const (
	KindUnknown ConnectionKind = iota
	KindInProcess
	KindLocalIPC
	KindRemote
	KindStdioTunnel
	KindMQTT
)

func (k ConnectionKind) String() string {
	switch k {
	case KindInProcess:
		return "in-process"
	case KindLocalIPC:
		return "local-ipc"
	case KindRemote:
		return "remote"
	case KindStdioTunnel:
		return "stdio-tunnel"
	case KindMQTT:
		return "mqtt"
	default:
		return "unknown"
	}
}

// Connection is the byte-oriented duplex abstraction owned exclusively by
// one endpoint or held in a router's routed-node map (spec §9 "Ownership
// of connections"). send may refuse under backpressure instead of
// blocking; fetch_messages and update never block (spec §5).
type Connection interface {
	// Send attempts to hand off m for transmission. It returns false on
	// transient backpressure (buffer full); the caller is expected to
	// retry the same message on its next Update.
	Send(m types.Message) bool

	// FetchMessages drains whatever has arrived since the last call,
	// without blocking.
	FetchMessages() []types.Message

	// Update drives any internal I/O (e.g. a non-blocking socket read)
	// and returns whether it made forward progress.
	Update() bool

	// IsUsable reports whether the connection can currently send/receive.
	IsUsable() bool

	// MaxDataSize is the largest payload a single Send can carry.
	MaxDataSize() int

	// Kind identifies the concrete transport.
	Kind() ConnectionKind

	// Cleanup releases any OS resources (sockets, queues, goroutines).
	Cleanup() error
}

// Acceptor is a passive listener that produces newly-accepted Connections
// for a router's pending-connection staging area (spec §4.2).
type Acceptor interface {
	// Accept returns a newly accepted connection, or ok=false if none is
	// currently available. It never blocks.
	Accept() (conn Connection, ok bool)

	// Address is the opaque address string this acceptor listens on
	// (spec §6 "Acceptor address schemes").
	Address() string

	// Close stops accepting and releases resources.
	Close() error
}
