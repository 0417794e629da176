// Package types holds the message bus's shared data model: identifiers,
// the wire message, priority and age rules, and the router/endpoint views
// of each other that the core packages build on.
package types

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// EndpointID is the opaque integer identifying a bus participant.
// Zero is reserved for broadcast; use IsValid to gate any other use.
type EndpointID uint64

// Broadcast is the reserved target id meaning "every subscriber".
const Broadcast EndpointID = 0

// IsValid reports whether id can be used as a concrete source or target,
// i.e. it is not the broadcast placeholder.
func (id EndpointID) IsValid() bool {
	return id != Broadcast
}

func (id EndpointID) String() string {
	return fmt.Sprintf("ept-%d", uint64(id))
}

// IDRange is a disjoint, half-open sub-range [Base, End) of endpoint ids
// handed to a single router at construction, so that independently booted
// routers never hand out colliding ids without central coordination.
type IDRange struct {
	Base EndpointID
	End  EndpointID
}

// Contains reports whether id falls within the range.
func (r IDRange) Contains(id EndpointID) bool {
	return id >= r.Base && id < r.End
}

// Empty reports whether the range contains no ids at all.
func (r IDRange) Empty() bool {
	return r.Base >= r.End
}

// ProcessInstanceID is assigned once per process lifetime and lets a
// router detect that an endpoint claiming a previously-seen id is in fact
// a fresh process (relaunch), not a duplicate live endpoint.
type ProcessInstanceID uuid.UUID

// NewProcessInstanceID returns a fresh id. Most callers want
// CurrentProcessInstanceID instead, which memoizes one per process.
func NewProcessInstanceID() ProcessInstanceID {
	return ProcessInstanceID(uuid.New())
}

func (p ProcessInstanceID) String() string {
	return uuid.UUID(p).String()
}

// Fingerprint folds the id down to the uint64 that fits in a message's
// sequence field, the only place spec §4.1's "still-alive" beacon has to
// carry it on the wire.
func (p ProcessInstanceID) Fingerprint() uint64 {
	return binary.BigEndian.Uint64(p[0:8]) ^ binary.BigEndian.Uint64(p[8:16])
}

var (
	processInstanceOnce sync.Once
	processInstance     ProcessInstanceID
)

// CurrentProcessInstanceID returns this process's singleton instance id,
// generated once on first use and read-only thereafter (spec §9 "Global
// process state").
func CurrentProcessInstanceID() ProcessInstanceID {
	processInstanceOnce.Do(func() {
		processInstance = NewProcessInstanceID()
	})
	return processInstance
}

// MessageClass names a message's broad category. The bus-internal class
// marks special/control traffic handled by routers and endpoints directly,
// never delivered to application subscribers.
type MessageClass string

// ClassBusInternal marks control messages reserved by the bus itself.
const ClassBusInternal MessageClass = "bus-internal"

// MessageMethod names a message within its class.
type MessageMethod string

// MessageID is the (class, method) pair used for subscriptions, firewall
// lists, and dispatch. Equality and hashing are on the pair, so MessageID
// is safe to use as a map key directly.
type MessageID struct {
	Class  MessageClass
	Method MessageMethod
}

// NewMessageID builds a MessageID in the given class.
func NewMessageID(class MessageClass, method string) MessageID {
	return MessageID{Class: class, Method: MessageMethod(method)}
}

// IsSpecial reports whether this id belongs to the bus-internal class and
// must therefore be intercepted by the router/endpoint special-message
// dispatcher instead of reaching application subscribers.
func (id MessageID) IsSpecial() bool {
	return id.Class == ClassBusInternal
}

func (id MessageID) String() string {
	return fmt.Sprintf("%s/%s", id.Class, id.Method)
}

// BlobID identifies one in-flight BLOB within the id space of one side of a
// transfer; the sender's source_blob_id and the receiver's target_blob_id
// are distinct spaces paired via the first fragment of a transfer.
type BlobID uint64
