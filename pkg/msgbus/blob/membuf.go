package blob

import "github.com/go-msgbus/msgbus/pkg/msgbus/types"

// MemorySource is a SourceIO backed by an in-memory byte slice, with no
// pre-stage work to perform. Grounded on the teacher's in-memory
// Deliverable fixtures (pkg/mcast/core/deliver_test.go) used to drive the
// state machine without real network IO.
type MemorySource struct {
	data []byte
}

// NewMemorySource wraps data for outgoing transmission. data is not
// copied; callers must not mutate it afterwards.
func NewMemorySource(data []byte) *MemorySource {
	return &MemorySource{data: data}
}

func (m *MemorySource) FetchFragment(offset uint64, dst []byte) int {
	if offset >= uint64(len(m.data)) {
		return 0
	}
	n := copy(dst, m.data[offset:])
	return n
}

func (m *MemorySource) IsAtEOD(offset uint64) bool {
	return offset >= uint64(len(m.data))
}

func (m *MemorySource) TotalSize() uint64 {
	return uint64(len(m.data))
}

func (m *MemorySource) Prepare() (float64, types.BlobPrepStatus) {
	return 1, types.BlobPrepFinished
}

var _ SourceIO = (*MemorySource)(nil)

// MemoryTarget is a TargetIO that assembles an incoming BLOB directly
// into a byte slice, for tests and simple in-process consumers that want
// the whole payload at once without the stream/chunk event protocol.
type MemoryTarget struct {
	buf        []byte
	Finished   bool
	Cancelled  bool
	FinishInfo BlobInfo
}

// NewMemoryTarget allocates a sink for a BLOB of the given total size.
func NewMemoryTarget(total uint64) *MemoryTarget {
	return &MemoryTarget{buf: make([]byte, total)}
}

func (m *MemoryTarget) CheckStored(offset uint64, data []byte) bool {
	end := offset + uint64(len(data))
	if end > uint64(len(m.buf)) {
		return false
	}
	for i, b := range data {
		if m.buf[offset+uint64(i)] != b {
			return false
		}
	}
	return true
}

func (m *MemoryTarget) StoreFragment(offset uint64, data []byte, _ FragmentInfo) bool {
	end := offset + uint64(len(data))
	if end > uint64(len(m.buf)) {
		return false
	}
	copy(m.buf[offset:end], data)
	return true
}

func (m *MemoryTarget) HandleFinished(_ types.MessageID, _ types.Age, _ FragmentInfo, info BlobInfo) {
	m.Finished = true
	m.FinishInfo = info
}

func (m *MemoryTarget) HandleCancelled(_ BlobInfo) {
	m.Cancelled = true
}

// Bytes returns the assembled payload. Only meaningful once Finished.
func (m *MemoryTarget) Bytes() []byte {
	return m.buf
}

var _ TargetIO = (*MemoryTarget)(nil)
