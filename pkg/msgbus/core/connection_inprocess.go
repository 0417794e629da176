package core

import (
	"sync"

	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// DefaultInProcessMaxData is generous since no real framing limit applies
// to a shared queue within one address space.
const DefaultInProcessMaxData = 1 << 20

// inProcessQueue is one direction of a shared queue pair.
type inProcessQueue struct {
	mu      sync.Mutex
	buf     []types.Message
	closed  bool
	maxSize int
}

func newInProcessQueue(maxSize int) *inProcessQueue {
	return &inProcessQueue{maxSize: maxSize}
}

func (q *inProcessQueue) push(m types.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if q.maxSize > 0 && len(q.buf) >= q.maxSize {
		return false
	}
	q.buf = append(q.buf, m)
	return true
}

func (q *inProcessQueue) drain() []types.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil
	}
	out := q.buf
	q.buf = nil
	return out
}

func (q *inProcessQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

func (q *inProcessQueue) usable() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.closed
}

// InProcessConnection is a connection kind for endpoints and routers
// sharing one address space: two inProcessQueue buffers, one per
// direction, so Send on one side becomes FetchMessages on the other.
type InProcessConnection struct {
	outbound *inProcessQueue
	inbound  *inProcessQueue
	usable   *sharedUsability
}

// sharedUsability lets a test toggle a pair's liveness to exercise the
// connection_lost / connection_established signal sequence (spec §8
// scenario 6).
type sharedUsability struct {
	mu sync.RWMutex
	ok bool
}

func newSharedUsability() *sharedUsability {
	return &sharedUsability{ok: true}
}

func (s *sharedUsability) Set(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ok = ok
}

func (s *sharedUsability) Get() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ok
}

// NewInProcessPair builds two ends of an in-process connection, each
// capable of sending to the other and fetching what it sent. maxQueue
// bounds each direction's buffered messages (0 = unbounded), providing the
// backpressure Send reports via its bool return.
func NewInProcessPair(maxQueue int) (a, b *InProcessConnection) {
	q1 := newInProcessQueue(maxQueue)
	q2 := newInProcessQueue(maxQueue)
	usability := newSharedUsability()
	a = &InProcessConnection{outbound: q1, inbound: q2, usable: usability}
	b = &InProcessConnection{outbound: q2, inbound: q1, usable: usability}
	return a, b
}

func (c *InProcessConnection) Send(m types.Message) bool {
	if !c.IsUsable() {
		return false
	}
	return c.outbound.push(m)
}

func (c *InProcessConnection) FetchMessages() []types.Message {
	if !c.IsUsable() {
		return nil
	}
	return c.inbound.drain()
}

func (c *InProcessConnection) Update() bool { return false }

func (c *InProcessConnection) IsUsable() bool {
	return c.usable.Get() && c.outbound.usable() && c.inbound.usable()
}

func (c *InProcessConnection) MaxDataSize() int { return DefaultInProcessMaxData }

func (c *InProcessConnection) Kind() ConnectionKind { return KindInProcess }

func (c *InProcessConnection) Cleanup() error {
	c.outbound.close()
	return nil
}

// SetUsable lets tests and local supervisory code toggle the shared
// liveness flag for both ends of the pair at once, modeling a transient
// connection outage (spec §8 scenario 6).
func (c *InProcessConnection) SetUsable(ok bool) {
	c.usable.Set(ok)
}

var _ Connection = (*InProcessConnection)(nil)
