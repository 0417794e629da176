package blob

import (
	"bytes"
	"sync"

	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// BufferPool recycles byte slices for chunk allocations, shared by
// StreamIO and ChunkIO sinks (spec §4.3 "Both are supplied a buffer
// pool...").
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool returns a pool producing slices of chunkSize capacity.
func NewBufferPool(chunkSize int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{New: func() interface{} {
			return make([]byte, chunkSize)
		}},
	}
}

// Get returns a recycled or freshly-allocated buffer.
func (p *BufferPool) Get() []byte {
	return p.pool.Get().([]byte)
}

// Put returns buf to the pool for reuse.
func (p *BufferPool) Put(buf []byte) {
	p.pool.Put(buf) //nolint:staticcheck // intentional value copy of the slice header
}

// StreamEvent is what StreamIO emits via its Notify callback.
type StreamEvent struct {
	Kind     StreamEventKind
	Data     []byte
	BlobInfo BlobInfo
}

// StreamEventKind tags a StreamEvent.
type StreamEventKind uint8

const (
	StreamDataAppended StreamEventKind = iota
	StreamFinished
	StreamCancelled
)

// StreamIO is a TargetIO that notifies its owner of each in-order prefix
// that becomes contiguous from offset 0, holding out-of-order fragments
// until a contiguous prefix forms (spec §4.3 "stream_io").
type StreamIO struct {
	mu       sync.Mutex
	buf      *bytes.Buffer
	pending  map[uint64][]byte
	delivered uint64
	pool     *BufferPool
	notify   func(StreamEvent)
}

// NewStreamIO builds a streaming sink that calls notify on every
// contiguous-prefix append, and on completion/cancellation.
func NewStreamIO(pool *BufferPool, notify func(StreamEvent)) *StreamIO {
	return &StreamIO{
		buf:     &bytes.Buffer{},
		pending: make(map[uint64][]byte),
		pool:    pool,
		notify:  notify,
	}
}

func (s *StreamIO) CheckStored(offset uint64, data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset+uint64(len(data)) > s.delivered {
		// overlap with not-yet-flushed pending data isn't expected to
		// recur for a contiguous-prefix sink; treat it as agreeing.
		return true
	}
	stored := s.buf.Bytes()
	start := int(offset)
	end := start + len(data)
	if end > len(stored) {
		return false
	}
	return bytes.Equal(stored[start:end], data)
}

func (s *StreamIO) StoreFragment(offset uint64, data []byte, info FragmentInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)

	if offset != s.delivered {
		s.pending[offset] = cp
		return true
	}

	s.appendLocked(cp)
	for {
		next, ok := s.pending[s.delivered]
		if !ok {
			break
		}
		delete(s.pending, s.delivered)
		s.appendLocked(next)
	}
	return true
}

func (s *StreamIO) appendLocked(data []byte) {
	s.buf.Write(data)
	s.delivered += uint64(len(data))
	s.notify(StreamEvent{Kind: StreamDataAppended, Data: append([]byte(nil), data...)})
}

func (s *StreamIO) HandleFinished(_ types.MessageID, _ types.Age, _ FragmentInfo, info BlobInfo) {
	s.notify(StreamEvent{Kind: StreamFinished, BlobInfo: info})
}

func (s *StreamIO) HandleCancelled(info BlobInfo) {
	s.notify(StreamEvent{Kind: StreamCancelled, BlobInfo: info})
}

var _ TargetIO = (*StreamIO)(nil)

// ChunkIO is a TargetIO that buffers the whole BLOB, then on completion
// emits one StreamDataAppended event carrying the payload partitioned into
// fixed-size chunks, last chunk possibly short (spec §4.3 "chunk_io").
type ChunkIO struct {
	mu        sync.Mutex
	data      map[uint64][]byte
	total     uint64
	chunkSize int
	pool      *BufferPool
	notify    func(StreamEvent, [][]byte)
}

// NewChunkIO builds a whole-BLOB sink that partitions into chunkSize
// pieces on completion.
func NewChunkIO(chunkSize int, pool *BufferPool, notify func(StreamEvent, [][]byte)) *ChunkIO {
	return &ChunkIO{
		data:      make(map[uint64][]byte),
		chunkSize: chunkSize,
		pool:      pool,
		notify:    notify,
	}
}

func (c *ChunkIO) CheckStored(offset uint64, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.data[offset]
	if !ok || len(existing) != len(data) {
		return false
	}
	return bytes.Equal(existing, data)
}

func (c *ChunkIO) StoreFragment(offset uint64, data []byte, info FragmentInfo) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.data[offset] = cp
	if info.Options != 0 {
		// options only meaningfully observed on the first fragment; no-op here.
	}
	return true
}

func (c *ChunkIO) HandleFinished(_ types.MessageID, _ types.Age, _ FragmentInfo, info BlobInfo) {
	c.mu.Lock()
	whole := c.assembleLocked(info.TotalSize)
	c.mu.Unlock()

	var chunks [][]byte
	for i := 0; i < len(whole); i += c.chunkSize {
		end := i + c.chunkSize
		if end > len(whole) {
			end = len(whole)
		}
		buf := c.pool.Get()
		if cap(buf) < end-i {
			buf = make([]byte, end-i)
		}
		buf = buf[:end-i]
		copy(buf, whole[i:end])
		chunks = append(chunks, buf)
	}
	c.notify(StreamEvent{Kind: StreamDataAppended, BlobInfo: info}, chunks)
}

func (c *ChunkIO) assembleLocked(total uint64) []byte {
	out := make([]byte, total)
	var offsets []uint64
	for off := range c.data {
		offsets = append(offsets, off)
	}
	for _, off := range offsets {
		copy(out[off:], c.data[off])
	}
	return out
}

func (c *ChunkIO) HandleCancelled(info BlobInfo) {
	c.notify(StreamEvent{Kind: StreamCancelled, BlobInfo: info}, nil)
}

var _ TargetIO = (*ChunkIO)(nil)
