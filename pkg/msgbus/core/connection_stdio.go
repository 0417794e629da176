package core

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/go-msgbus/msgbus/pkg/msgbus/codec"
	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// DefaultStdioMaxData bounds a single stdio-tunnel frame's decoded payload.
const DefaultStdioMaxData = 4096

// StdioTunnelConnection bridges a pair of std streams with base64-over-
// newline framing (spec §6), JSON-encoding each message. A dedicated reader
// goroutine and a dedicated writer goroutine, the writer fed through a
// mutex-guarded outbox with a condition variable for wake-up, keep the
// Update path itself non-blocking (spec §5 "Suspension points").
type StdioTunnelConnection struct {
	reader *codec.StdioFrameReader
	writer *codec.StdioFrameWriter
	codecer codec.Codec

	incoming chan types.Message

	outMu   sync.Mutex
	outCond *sync.Cond
	outbox  [][]byte

	closed int32
	done   chan struct{}
}

// NewStdioTunnelConnection wraps in/out std streams (typically a child
// process's stdin/stdout from the parent's point of view, or os.Stdin/
// os.Stdout from the child's).
func NewStdioTunnelConnection(in io.Reader, out io.Writer) *StdioTunnelConnection {
	c := &StdioTunnelConnection{
		reader:   codec.NewStdioFrameReader(in, DefaultStdioMaxData),
		writer:   codec.NewStdioFrameWriter(out),
		codecer:  codec.NewJSONCodec(),
		incoming: make(chan types.Message, 256),
		done:     make(chan struct{}),
	}
	c.outCond = sync.NewCond(&c.outMu)
	go c.readLoop()
	go c.writeLoop()
	return c
}

func (c *StdioTunnelConnection) readLoop() {
	defer close(c.incoming)
	for {
		frame, err := c.reader.ReadFrame()
		if err != nil {
			return
		}
		m, err := c.codecer.Decode(frame)
		if err != nil {
			continue
		}
		select {
		case c.incoming <- m:
		case <-c.done:
			return
		}
	}
}

func (c *StdioTunnelConnection) writeLoop() {
	for {
		c.outMu.Lock()
		for len(c.outbox) == 0 && atomic.LoadInt32(&c.closed) == 0 {
			c.outCond.Wait()
		}
		if atomic.LoadInt32(&c.closed) == 1 && len(c.outbox) == 0 {
			c.outMu.Unlock()
			return
		}
		frame := c.outbox[0]
		c.outbox = c.outbox[1:]
		c.outMu.Unlock()

		_ = c.writer.WriteFrame(frame)
	}
}

func (c *StdioTunnelConnection) Send(m types.Message) bool {
	if atomic.LoadInt32(&c.closed) == 1 {
		return false
	}
	frame, err := c.codecer.Encode(m)
	if err != nil {
		return false
	}
	c.outMu.Lock()
	c.outbox = append(c.outbox, frame)
	c.outMu.Unlock()
	c.outCond.Signal()
	return true
}

func (c *StdioTunnelConnection) FetchMessages() []types.Message {
	var out []types.Message
	for {
		select {
		case m, ok := <-c.incoming:
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func (c *StdioTunnelConnection) Update() bool { return false }

func (c *StdioTunnelConnection) IsUsable() bool {
	return atomic.LoadInt32(&c.closed) == 0
}

func (c *StdioTunnelConnection) MaxDataSize() int { return DefaultStdioMaxData }

func (c *StdioTunnelConnection) Kind() ConnectionKind { return KindStdioTunnel }

func (c *StdioTunnelConnection) Cleanup() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	close(c.done)
	c.outCond.Signal()
	return nil
}

var _ Connection = (*StdioTunnelConnection)(nil)
