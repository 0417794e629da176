package endpoint

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/go-msgbus/msgbus/pkg/msgbus/blob"
	"github.com/go-msgbus/msgbus/pkg/msgbus/core"
	"github.com/go-msgbus/msgbus/pkg/msgbus/definition"
	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// Config bundles the tunables spec §5/§6 names for one endpoint; zero
// values fall back to definition's bus-wide defaults.
type Config struct {
	Name             string
	PreconfiguredID  types.EndpointID
	NoIDTimeout      time.Duration
	AliveNotifyPeriod time.Duration
}

func (c Config) withDefaults() Config {
	if c.NoIDTimeout == 0 {
		c.NoIDTimeout = definition.DefaultNoIDTimeout
	}
	if c.AliveNotifyPeriod == 0 {
		c.AliveNotifyPeriod = definition.DefaultAliveNotifyPeriod
	}
	return c
}

// Endpoint implements C2 (spec §4.1): owns one Connection, drives its own
// update loop, and exposes the post/broadcast/subscribe/process contract.
// Grounded on the teacher's Peer (pkg/mcast/core/peer.go) for the overall
// mutex-guarded, single-owner-per-tick shape.
type Endpoint struct {
	mu sync.Mutex

	conf Config
	log  types.Logger

	conn core.Connection
	id   *identity

	inbox  map[types.MessageID]*inboxQueue
	outbox []outboxEntry

	blobs *blob.Manipulator

	// processInstanceID is this process's singleton instance id (spec §9
	// "Global process state"), carried in every still-alive beacon's
	// sequence field so the router can detect a relaunch of this
	// endpoint's id (spec §3, §4.1).
	processInstanceID types.ProcessInstanceID

	hadWorkingConn bool
	lastAliveAt    time.Time
	seq            uint64

	signals signalBus
	avgAgeMs uint64
}

// New builds an endpoint bound to conn, not yet attempting id acquisition
// until the first Update call.
func New(conf Config, conn core.Connection, log types.Logger) *Endpoint {
	if log == nil {
		log = definition.NewNoopLogger()
	}
	conf = conf.withDefaults()
	e := &Endpoint{
		conf:              conf,
		log:               log,
		conn:              conn,
		id:                newIdentity(conf.PreconfiguredID),
		inbox:             make(map[types.MessageID]*inboxQueue),
		blobs:             blob.NewManipulator(types.MsgBlobFragment, types.MsgBlobResend),
		processInstanceID: types.CurrentProcessInstanceID(),
	}
	return e
}

// OnSignal registers a handler for connection/identity/BLOB signals (spec
// §9 "Signals").
func (e *Endpoint) OnSignal(h SignalHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signals.subscribe(h)
}

// GetID returns the endpoint's current id and whether it is valid yet.
func (e *Endpoint) GetID() (types.EndpointID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id.ID(), e.id.HasID()
}

// nextSeq issues the next locally-originated sequence number. The sequence
// field's meaning is per-message-id per spec §3; a per-endpoint monotonic
// counter is a safe default for messages this endpoint originates itself.
func (e *Endpoint) nextSeq() uint64 {
	e.seq++
	return e.seq
}

// Post enqueues one message addressed to target (spec §4.1 "post"). If the
// endpoint already has an id and the connection accepts it immediately, no
// queueing happens; otherwise it is staged in the outbox for the next
// Update.
func (e *Endpoint) Post(msgID types.MessageID, target types.EndpointID, payload []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.post(msgID, target, payload)
}

func (e *Endpoint) post(msgID types.MessageID, target types.EndpointID, payload []byte) bool {
	msg := types.NewMessage(msgID, e.id.ID(), target, payload)
	msg.SequenceNo = e.nextSeq()
	return e.enqueue(msg)
}

func (e *Endpoint) enqueue(msg types.Message) bool {
	if e.id.HasID() && e.conn.Send(msg) {
		return true
	}
	e.outbox = append(e.outbox, outboxEntry{msg: msg})
	return true
}

// Broadcast enqueues msgID to every subscriber (spec §4.1 "broadcast").
func (e *Endpoint) Broadcast(msgID types.MessageID, payload []byte) bool {
	return e.Post(msgID, types.Broadcast, payload)
}

// RespondTo builds and enqueues a reply copying trigger's sequence number
// and addressing trigger's source (spec §4.1 "respond_to").
func (e *Endpoint) RespondTo(trigger types.Message, replyID types.MessageID, payload []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	msg := types.RespondTo(trigger, e.id.ID(), replyID, payload)
	return e.enqueue(msg)
}

// Subscribe registers interest in msgID and notifies the router (spec
// §4.1 "subscribe").
func (e *Endpoint) Subscribe(msgID types.MessageID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.inbox[msgID]
	if !ok {
		q = &inboxQueue{}
		e.inbox[msgID] = q
	}
	q.refcount++
	if q.refcount == 1 {
		e.post(types.MsgSubscribeTo, 0, encodeMessageID(msgID))
	}
}

// Unsubscribe drops one reference to msgID, removing the registry entry and
// notifying the router once the refcount reaches zero (spec §4.1
// "unsubscribe", spec §8 invariant on post-unsubscribe delivery).
func (e *Endpoint) Unsubscribe(msgID types.MessageID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.inbox[msgID]
	if !ok {
		return
	}
	q.refcount--
	if q.refcount > 0 {
		return
	}
	delete(e.inbox, msgID)
	e.post(types.MsgUnsubFrom, 0, encodeMessageID(msgID))
}

// ProcessOne drains at most one queued message for msgID into handler
// (spec §4.1 "process_one").
func (e *Endpoint) ProcessOne(msgID types.MessageID, handler Handler) bool {
	e.mu.Lock()
	q, ok := e.inbox[msgID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	msg, ok := q.popOne()
	e.mu.Unlock()
	if !ok {
		return false
	}
	handler(msg)
	return true
}

// ProcessAll drains every queued message for msgID into handler, returning
// the count (spec §4.1 "process_all").
func (e *Endpoint) ProcessAll(msgID types.MessageID, handler Handler) int {
	e.mu.Lock()
	q, ok := e.inbox[msgID]
	if !ok {
		e.mu.Unlock()
		return 0
	}
	msgs := q.popAll()
	e.mu.Unlock()
	for _, m := range msgs {
		handler(m)
	}
	return len(msgs)
}

// ProcessEverything drains every subscribed queue into handler, returning
// the total count (spec §4.1 "process_everything").
func (e *Endpoint) ProcessEverything(handler Handler) int {
	e.mu.Lock()
	var all []types.Message
	for _, q := range e.inbox {
		all = append(all, q.popAll()...)
	}
	e.mu.Unlock()
	for _, m := range all {
		handler(m)
	}
	return len(all)
}

// Finish gracefully detaches: it says goodbye on the connection when the
// endpoint has an id, then cleans the connection up (spec §4.1 "finish").
func (e *Endpoint) Finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.id.HasID() {
		e.conn.Send(types.NewMessage(types.MsgByeByeEndp, e.id.ID(), 0, nil))
	}
	_ = e.conn.Cleanup()
}

func encodeMessageID(id types.MessageID) []byte {
	class := []byte(id.Class)
	method := []byte(id.Method)
	buf := make([]byte, 2+len(class)+2+len(method))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(class)))
	copy(buf[2:], class)
	off := 2 + len(class)
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(method)))
	copy(buf[off+2:], method)
	return buf
}

func decodeMessageID(buf []byte) (types.MessageID, bool) {
	if len(buf) < 2 {
		return types.MessageID{}, false
	}
	cl := binary.BigEndian.Uint16(buf[0:2])
	if len(buf) < int(2+cl+2) {
		return types.MessageID{}, false
	}
	class := string(buf[2 : 2+cl])
	rest := buf[2+cl:]
	ml := binary.BigEndian.Uint16(rest[0:2])
	if len(rest) < int(2+ml) {
		return types.MessageID{}, false
	}
	method := string(rest[2 : 2+ml])
	return types.NewMessageID(types.MessageClass(class), method), true
}
