package core

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/go-msgbus/msgbus/pkg/msgbus/codec"
	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// WebSocketConnection is an alternate remote inter-process connection kind
// used when the fabric needs to cross an HTTP boundary (e.g. a browser
// based monitor peer, or a router reachable only through a reverse proxy).
// One binary websocket message carries one bus frame.
type WebSocketConnection struct {
	conn    *websocket.Conn
	codecer codec.Codec

	writeMu sync.Mutex

	incoming chan types.Message
	closed   int32
	done     chan struct{}
}

// NewWebSocketConnection wraps an already-established *websocket.Conn
// (from websocket.Dial or an Upgrade on the acceptor side).
func NewWebSocketConnection(conn *websocket.Conn) *WebSocketConnection {
	c := &WebSocketConnection{
		conn:     conn,
		codecer:  codec.NewJSONCodec(),
		incoming: make(chan types.Message, 256),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *WebSocketConnection) readLoop() {
	defer close(c.incoming)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		m, err := c.codecer.Decode(data)
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

func (c *WebSocketConnection) Send(m types.Message) bool {
	if atomic.LoadInt32(&c.closed) == 1 {
		return false
	}
	frame, err := c.codecer.Encode(m)
	if err != nil {
		return false
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(writeDeadline()); err != nil {
		return false
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, frame) == nil
}

func (c *WebSocketConnection) FetchMessages() []types.Message {
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

func (c *WebSocketConnection) Update() bool { return false }

func (c *WebSocketConnection) IsUsable() bool {
	return atomic.LoadInt32(&c.closed) == 0
}

func (c *WebSocketConnection) MaxDataSize() int { return DefaultRemoteMaxData }

func (c *WebSocketConnection) Kind() ConnectionKind { return KindRemote }

func (c *WebSocketConnection) Cleanup() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	close(c.done)
	return c.conn.Close()
}

var _ Connection = (*WebSocketConnection)(nil)
