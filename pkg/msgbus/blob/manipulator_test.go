package blob

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

var (
	fragID  = types.NewMessageID(types.ClassBusInternal, "blob-frag")
	resndID = types.NewMessageID(types.ClassBusInternal, "blob-resend")
)

// driveTransfer wires a source-side and target-side manipulator back to
// back through plain function calls (no real Connection), fully draining
// ProcessOutgoing/ProcessIncoming until the target reports completion or
// budget fragments have been exchanged.
func driveTransfer(t *testing.T, payload []byte, maxDataSize, budget int) (*Manipulator, *Manipulator, *MemoryTarget, types.BlobID) {
	t.Helper()

	src := NewManipulator(fragID, resndID)
	dst := NewManipulator(fragID, resndID)

	source := NewMemorySource(payload)
	target := NewMemoryTarget(uint64(len(payload)))

	srcBlobID := src.PushOutgoing(types.NewMessageID("app", "upload"), 1, 2, 0, source, time.Minute, 0, types.PriorityNormal)
	require.True(t, dst.ExpectIncoming(types.NewMessageID("app", "upload"), 1, srcBlobID, target, time.Minute))

	require.True(t, src.Update(time.Now()))

	for i := 0; i < budget; i++ {
		sent := false
		src.ProcessOutgoing(func(m types.Message) bool {
			sent = true
			return dst.ProcessIncoming(m)
		}, maxDataSize, 4)
		if !sent {
			break
		}
	}
	return src, dst, target, srcBlobID
}

func TestRoundTripDeliversExactPayload(t *testing.T) {
	payload := make([]byte, 5000)
	rand.New(rand.NewSource(1)).Read(payload)

	_, dst, target, _ := driveTransfer(t, payload, 256, 200)

	delivered := dst.HandleComplete()
	assert.Equal(t, 1, delivered)
	assert.True(t, target.Finished)
	assert.Equal(t, payload, target.Bytes())
}

func TestResendRecoversDroppedFragment(t *testing.T) {
	payload := make([]byte, 2000)
	rand.New(rand.NewSource(2)).Read(payload)

	src := NewManipulator(fragID, resndID)
	dst := NewManipulator(fragID, resndID)
	source := NewMemorySource(payload)
	target := NewMemoryTarget(uint64(len(payload)))

	srcBlobID := src.PushOutgoing(types.NewMessageID("app", "upload"), 1, 2, 0, source, time.Minute, 0, types.PriorityNormal)
	require.True(t, dst.ExpectIncoming(types.NewMessageID("app", "upload"), 1, srcBlobID, target, time.Minute))
	require.True(t, src.Update(time.Now()))

	dropNext := true
	forward := func(m types.Message) bool {
		if dropNext {
			dropNext = false
			return true // sender believes it was sent; receiver never sees it.
		}
		return dst.ProcessIncoming(m)
	}

	for i := 0; i < 50; i++ {
		src.ProcessOutgoing(forward, 200, 4)
	}

	assert.False(t, target.Finished, "must not complete with a fragment missing")

	dst.idleTimeout = 0
	require.True(t, dst.CheckResends(time.Now(), func(m types.Message) bool {
		return src.ProcessResend(m)
	}))

	for i := 0; i < 50; i++ {
		src.ProcessOutgoing(func(m types.Message) bool {
			return dst.ProcessIncoming(m)
		}, 200, 4)
	}

	delivered := dst.HandleComplete()
	assert.Equal(t, 1, delivered)
	assert.Equal(t, payload, target.Bytes())
}

func TestDuplicateFragmentWithinLingerIsIdempotent(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")

	src, dst, target, srcBlobID := driveTransfer(t, payload, 16, 50)
	first := dst.HandleComplete()
	require.Equal(t, 1, first)
	require.Equal(t, payload, target.Bytes())

	finishedBefore := target.Finished
	frame := encodeFragment(srcBlobID, 0, 0, uint64(len(payload)), 0, types.NewMessageID("app", "upload"), payload[:10])
	dup := types.NewMessage(fragID, 1, 2, frame)

	assert.True(t, dst.ProcessIncoming(dup), "duplicate fragment within linger window is accepted, not rejected")
	second := dst.HandleComplete()
	assert.Equal(t, 0, second, "HandleFinished must not fire twice for the same descriptor")
	assert.Equal(t, finishedBefore, target.Finished)
	_ = src
}

func TestFetchAllSurfacesEachCompletedBlobOnce(t *testing.T) {
	payload := []byte("small payload")
	_, dst, _, _ := driveTransfer(t, payload, 64, 10)
	dst.HandleComplete()

	var seen int
	dst.FetchAll(func(BlobInfo) { seen++ })
	dst.FetchAll(func(BlobInfo) { seen++ })
	assert.Equal(t, 1, seen, "a completed blob is only surfaced once across repeated FetchAll calls")
}

func TestChunkIOPartitionsWholePayloadOnCompletion(t *testing.T) {
	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}

	var finished [][]byte
	pool := NewBufferPool(32)
	sink := NewChunkIO(32, pool, func(ev StreamEvent, chunks [][]byte) {
		if ev.Kind == StreamDataAppended {
			finished = chunks
		}
	})

	src := NewManipulator(fragID, resndID)
	dst := NewManipulator(fragID, resndID)
	source := NewMemorySource(payload)

	srcBlobID := src.PushOutgoing(types.NewMessageID("app", "upload"), 1, 2, 0, source, time.Minute, 0, types.PriorityNormal)
	require.True(t, dst.ExpectIncoming(types.NewMessageID("app", "upload"), 1, srcBlobID, sink, time.Minute))
	require.True(t, src.Update(time.Now()))

	for i := 0; i < 20; i++ {
		src.ProcessOutgoing(func(m types.Message) bool {
			return dst.ProcessIncoming(m)
		}, 24, 4)
	}
	dst.HandleComplete()

	require.Len(t, finished, 4)
	assert.Len(t, finished[0], 32)
	assert.Len(t, finished[3], 4)

	var reassembled []byte
	for _, c := range finished {
		reassembled = append(reassembled, c...)
	}
	assert.Equal(t, payload, reassembled)
}

func TestStreamIOEmitsOnlyContiguousPrefix(t *testing.T) {
	var appended []byte
	finished := false
	sink := NewStreamIO(NewBufferPool(16), func(ev StreamEvent) {
		switch ev.Kind {
		case StreamDataAppended:
			appended = append(appended, ev.Data...)
		case StreamFinished:
			finished = true
		}
	})

	info := FragmentInfo{SourceID: 1, TargetID: 2}
	// fragment 2 arrives before fragment 1: nothing should flush yet.
	assert.True(t, sink.StoreFragment(5, []byte("World"), info))
	assert.Empty(t, appended)

	assert.True(t, sink.StoreFragment(0, []byte("Hello"), info))
	assert.Equal(t, []byte("HelloWorld"), appended)

	sink.HandleFinished(types.MessageID{}, types.Age(0), info, BlobInfo{})
	assert.True(t, finished)
}
