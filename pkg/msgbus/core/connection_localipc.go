package core

import (
	"sync"
	"sync/atomic"

	"github.com/go-msgbus/msgbus/pkg/msgbus/codec"
	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// DefaultLocalIPCMaxData mirrors a conservative POSIX mqueue message size
// limit (the original's posix_mqueue_impl.cpp targets similar figures).
const DefaultLocalIPCMaxData = 8192

// localMQueue models one directional OS message queue as a bounded byte
// channel, grounded on original_source/.../posix_mqueue_impl.cpp without
// depending on the actual POSIX mq_* syscalls (those are inherently
// platform-specific; the channel stands in for the kernel queue here).
type localMQueue struct {
	ch     chan []byte
	closed int32
}

func newLocalMQueue(depth int) *localMQueue {
	return &localMQueue{ch: make(chan []byte, depth)}
}

func (q *localMQueue) trySend(frame []byte) bool {
	if atomic.LoadInt32(&q.closed) == 1 {
		return false
	}
	select {
	case q.ch <- frame:
		return true
	default:
		return false
	}
}

func (q *localMQueue) drain() [][]byte {
	var out [][]byte
	for {
		select {
		case frame := <-q.ch:
			out = append(out, frame)
		default:
			return out
		}
	}
}

func (q *localMQueue) close() {
	if atomic.CompareAndSwapInt32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

func (q *localMQueue) usable() bool {
	return atomic.LoadInt32(&q.closed) == 0
}

// LocalIPCConnection is the local inter-process connection kind: two
// named OS message queues, identified by a filesystem path or identifier
// (spec §4, §6), framed with codec.GobCodec for compactness.
type LocalIPCConnection struct {
	path    string
	codec   codec.Codec
	send    *localMQueue
	recv    *localMQueue
	mu      sync.Mutex
}

// NewLocalIPCPair builds two ends of a local-IPC connection named path,
// as though each had opened the same pair of OS message queues.
func NewLocalIPCPair(path string, depth int) (a, b *LocalIPCConnection) {
	q1 := newLocalMQueue(depth)
	q2 := newLocalMQueue(depth)
	c := codec.NewGobCodec()
	a = &LocalIPCConnection{path: path, codec: c, send: q1, recv: q2}
	b = &LocalIPCConnection{path: path, codec: c, send: q2, recv: q1}
	return a, b
}

func (c *LocalIPCConnection) Send(m types.Message) bool {
	frame, err := c.codec.Encode(m)
	if err != nil {
		return false
	}
	return c.send.trySend(frame)
}

func (c *LocalIPCConnection) FetchMessages() []types.Message {
	frames := c.recv.drain()
	if len(frames) == 0 {
		return nil
	}
	out := make([]types.Message, 0, len(frames))
	for _, f := range frames {
		m, err := c.codec.Decode(f)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (c *LocalIPCConnection) Update() bool { return false }

func (c *LocalIPCConnection) IsUsable() bool {
	return c.send.usable() && c.recv.usable()
}

func (c *LocalIPCConnection) MaxDataSize() int { return DefaultLocalIPCMaxData }

func (c *LocalIPCConnection) Kind() ConnectionKind { return KindLocalIPC }

func (c *LocalIPCConnection) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.send.close()
	return nil
}

var _ Connection = (*LocalIPCConnection)(nil)
