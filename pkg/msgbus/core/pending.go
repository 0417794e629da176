package core

import (
	"encoding/binary"
	"time"

	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// pendingConnection is a newly accepted connection running the id-assignment
// (and optional password) handshake before it is eligible for forwarding
// (spec §4.2 "Pending-connection staging").
type pendingConnection struct {
	conn Connection

	createdAt time.Time

	awaitingPassword      bool
	nonce                 []byte
	lastPasswordRequestAt time.Time

	preconfigured types.EndpointID
}

func newPendingConnection(conn Connection, now time.Time) *pendingConnection {
	return &pendingConnection{conn: conn, createdAt: now}
}

func (p *pendingConnection) expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(p.createdAt) > timeout
}

func (p *pendingConnection) passwordRetryDue(now time.Time, retry time.Duration) bool {
	return now.Sub(p.lastPasswordRequestAt) >= retry
}

// idPayload encodes id as the router's 8-byte big-endian id payload
// convention, shared by assign-id/confirm-id.
func idPayload(id types.EndpointID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// decodeIDPayload is the inverse of idPayload, used to read a preconfigured
// id out of a request-id message.
func decodeIDPayload(payload []byte) (types.EndpointID, bool) {
	if len(payload) < 8 {
		return 0, false
	}
	return types.EndpointID(binary.BigEndian.Uint64(payload)), true
}

// makeNonce derives a per-handshake nonce. It is not cryptographically
// secure; the bus layer never performs real cryptography (spec §7), it only
// carries the request/response shape for a higher layer to secure.
func makeNonce(seed uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seed)
	return buf
}
