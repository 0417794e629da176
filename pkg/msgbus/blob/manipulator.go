package blob

import (
	"sync"
	"time"

	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// SendFunc hands a fully-formed fragment message off to a connection; it
// returns whether the send succeeded, matching Connection.Send's
// backpressure-signaling bool.
type SendFunc func(m types.Message) bool

// outgoingBlob pairs a descriptor with the SourceIO supplying its bytes.
type outgoingBlob struct {
	desc *types.BlobDescriptor
	io   SourceIO
}

// incomingBlob pairs a descriptor with the TargetIO consuming its bytes.
type incomingBlob struct {
	desc *types.BlobDescriptor
	io   TargetIO

	lastFragmentAt time.Time
	resendSent     bool
	fetched        bool
}

// Manipulator implements the BLOB manipulator (spec §4.3). One instance
// serves one owner (an endpoint or a router) and is single-threaded with
// respect to that owner (spec §5).
type Manipulator struct {
	mu sync.Mutex

	fragmentMsgID types.MessageID
	resendMsgID   types.MessageID

	nextSourceID types.BlobID
	idleTimeout  time.Duration

	outgoing map[types.BlobID]*outgoingBlob
	incoming map[pairKey]*incomingBlob
}

// pairKey identifies an incoming descriptor by the peer's declared
// (source, target) blob id pair, since that's all a fragment alone
// reveals before the descriptor exists.
type pairKey struct {
	source types.BlobID
	target types.BlobID
}

// NewManipulator builds a manipulator that frames fragments under
// fragmentMsgID and resend requests under resendMsgID.
func NewManipulator(fragmentMsgID, resendMsgID types.MessageID) *Manipulator {
	return &Manipulator{
		fragmentMsgID: fragmentMsgID,
		resendMsgID:   resendMsgID,
		idleTimeout:   time.Second,
		outgoing:      make(map[types.BlobID]*outgoingBlob),
		incoming:      make(map[pairKey]*incomingBlob),
	}
}

// PushOutgoing registers a new outgoing BLOB and returns its local id
// (spec §4.3 "push_outgoing").
func (m *Manipulator) PushOutgoing(msgID types.MessageID, srcID, tgtID types.EndpointID, targetBlobID types.BlobID, io SourceIO, maxTime time.Duration, opts types.BlobOptions, prio types.Priority) types.BlobID {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSourceID++
	id := m.nextSourceID
	desc := types.NewBlobDescriptor(srcID, tgtID, msgID, io.TotalSize(), opts, prio, maxTime)
	desc.SourceBlobID = id
	desc.TargetBlobID = targetBlobID
	m.outgoing[id] = &outgoingBlob{desc: desc, io: io}
	return id
}

// ExpectIncoming pre-registers an incoming BLOB before its first fragment
// arrives, so process_incoming can accept it from an untrusted peer only
// when expected (spec §7 "BLOB fragment for unknown BLOB").
func (m *Manipulator) ExpectIncoming(msgID types.MessageID, srcID types.EndpointID, targetBlobID types.BlobID, io TargetIO, maxTime time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{target: targetBlobID}
	if _, exists := m.incoming[key]; exists {
		return false
	}
	desc := types.NewBlobDescriptor(srcID, 0, msgID, 0, 0, types.PriorityNormal, maxTime)
	desc.TargetBlobID = targetBlobID
	m.incoming[key] = &incomingBlob{desc: desc, io: io, lastFragmentAt: time.Now()}
	return true
}

// ProcessIncoming handles one received fragment message (spec §4.3
// "Reassembly"). It returns false if the fragment was rejected or
// unexpected.
func (m *Manipulator) ProcessIncoming(msg types.Message) bool {
	frag, err := decodeFragment(msg.Payload)
	if err != nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{source: frag.SourceBlobID, target: frag.TargetBlobID}
	in, ok := m.incoming[key]
	if !ok {
		// try matching on target-only key from an ExpectIncoming call
		// that hasn't yet learned the peer's source id.
		in, ok = m.incoming[pairKey{target: frag.TargetBlobID}]
		if !ok {
			return false
		}
		delete(m.incoming, pairKey{target: frag.TargetBlobID})
		in.desc.SourceBlobID = frag.SourceBlobID
		m.incoming[key] = in
	}

	if in.desc.LingerExpired(time.Now()) {
		delete(m.incoming, key)
		return false
	}
	if in.desc.Completed {
		// duplicate fragment within linger window: silently accepted, no-op.
		return true
	}

	if in.desc.TotalSize == 0 {
		// every fragment's fixed prefix carries the total size, so a lost
		// first fragment still leaves the size known for resend requests.
		in.desc.TotalSize = frag.TotalSize
	}
	if frag.IsFirst {
		in.desc.TotalSize = frag.TotalSize
		in.desc.Options = frag.Options
		in.desc.MessageID = frag.InnerID
	}

	iv := types.Interval{Begin: frag.Offset, End: frag.Offset + uint64(len(frag.Data))}
	if overlap, has := in.desc.DoneParts.OverlapPortion(iv); has {
		knownLen := overlap.Len()
		relStart := overlap.Begin - frag.Offset
		if !in.io.CheckStored(overlap.Begin, frag.Data[relStart:relStart+knownLen]) {
			return false
		}
		// bytes beyond the known overlap (if any) still need storing.
		if iv.End > overlap.End {
			newPart := frag.Data[overlap.End-frag.Offset:]
			if !in.io.StoreFragment(overlap.End, newPart, m.fragInfo(in)) {
				return false
			}
		}
	} else {
		if !in.io.StoreFragment(frag.Offset, frag.Data, m.fragInfo(in)) {
			return false
		}
	}

	in.desc.DoneParts.Add(iv)
	in.lastFragmentAt = time.Now()
	in.resendSent = false

	if in.desc.TotalSize > 0 && in.desc.DoneParts.CoversFull(in.desc.TotalSize) {
		in.desc.MarkComplete(time.Now())
	}
	return true
}

func (m *Manipulator) fragInfo(in *incomingBlob) FragmentInfo {
	return FragmentInfo{
		SourceID: in.desc.SourceID,
		TargetID: in.desc.TargetID,
		Options:  in.desc.Options,
		Priority: in.desc.Priority,
	}
}

// ProcessResend handles a received resend-request message, staging the
// requested intervals into the matching outgoing descriptor's TodoParts
// (spec §4.3 "Resend requests").
func (m *Manipulator) ProcessResend(msg types.Message) bool {
	req, err := decodeResendRequest(msg.Payload)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out, ok := m.outgoing[req.SourceBlobID]
	if !ok {
		return false
	}
	out.desc.TargetBlobID = req.TargetBlobID
	for _, iv := range req.Missing {
		out.desc.TodoParts.Add(iv)
	}
	return true
}

// Update drives preparation (spec §4.3 "Pacing"/prepare pre-stage) and
// stages freshly-prepared outgoing BLOBs' full range into TodoParts the
// first time preparation finishes. It reports whether it made progress.
func (m *Manipulator) Update(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := false
	for _, out := range m.outgoing {
		if out.desc.PrepStatus == types.BlobPrepFinished {
			continue
		}
		progress, status := out.io.Prepare()
		out.desc.PrepProgress = progress
		out.desc.PrepStatus = status
		work = true
		if status == types.BlobPrepFinished {
			out.desc.TotalSize = out.io.TotalSize()
			out.desc.TodoParts.Add(types.Interval{Begin: 0, End: out.desc.TotalSize})
		}
	}

	for key, in := range m.incoming {
		if in.desc.Expired(now) {
			in.io.HandleCancelled(m.blobInfo(in.desc))
			delete(m.incoming, key)
			work = true
			continue
		}
		if in.desc.LingerExpired(now) {
			delete(m.incoming, key)
			work = true
			continue
		}
	}

	for id, out := range m.outgoing {
		if out.desc.Expired(now) {
			delete(m.outgoing, id)
			work = true
		}
	}
	return work
}

func (m *Manipulator) blobInfo(desc *types.BlobDescriptor) BlobInfo {
	return BlobInfo{
		SourceID:     desc.SourceID,
		TargetID:     desc.TargetID,
		MessageID:    desc.MessageID,
		TotalSize:    desc.TotalSize,
		SourceBlobID: desc.SourceBlobID,
		TargetBlobID: desc.TargetBlobID,
	}
}

// ProcessOutgoing emits up to maxMessages fragments, clipped to
// maxDataSize bytes each, reading bytes from each outgoing BLOB's
// source-IO (spec §4.3 "process_outgoing"). It returns whether any
// fragment was sent.
func (m *Manipulator) ProcessOutgoing(send SendFunc, maxDataSize int, maxMessages int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sent := 0
	work := false
	for id, out := range m.outgoing {
		for sent < maxMessages {
			iv, ok := m.nextOutgoingRange(out)
			if !ok {
				break
			}
			n := iv.Len()
			maxFragData := uint64(maxDataSize) - fragmentOverhead(iv.Begin == 0)
			if n > maxFragData {
				n = maxFragData
			}
			data := make([]byte, n)
			written := out.io.FetchFragment(iv.Begin, data)
			data = data[:written]

			payload := encodeFragment(id, out.desc.TargetBlobID, iv.Begin, out.desc.TotalSize, out.desc.Options, out.desc.MessageID, data)
			msg := types.NewMessage(m.fragmentMsgID, out.desc.SourceID, out.desc.TargetID, payload)
			msg.Priority = out.desc.Priority

			if !send(msg) {
				// backpressure: stop for this blob, retry next call.
				break
			}
			out.desc.DoneParts.Add(types.Interval{Begin: iv.Begin, End: iv.Begin + uint64(written)})
			sent++
			work = true
		}
		if sent >= maxMessages {
			break
		}
	}
	return work
}

// fragmentOverhead accounts for the fixed prefix (plus the first-fragment
// extras) so a clipped fragment still respects maxDataSize end to end.
func fragmentOverhead(isFirst bool) uint64 {
	if isFirst {
		return uint64(fragmentHeaderFixed) + 1 + 2 + 2 + 32
	}
	return uint64(fragmentHeaderFixed)
}

// nextOutgoingRange picks the next interval to send: staged resend ranges
// (TodoParts) take priority over simply continuing from the end of
// DoneParts, so a resend is serviced promptly.
func (m *Manipulator) nextOutgoingRange(out *outgoingBlob) (types.Interval, bool) {
	todo := out.desc.TodoParts.Intervals()
	if len(todo) > 0 {
		first := todo[0]
		out.desc.TodoParts = types.NewIntervalSet()
		for _, iv := range todo[1:] {
			out.desc.TodoParts.Add(iv)
		}
		return first, true
	}
	if out.desc.TotalSize == 0 {
		return types.Interval{}, false
	}
	done := out.desc.DoneParts.Intervals()
	var cursor uint64
	if len(done) > 0 {
		cursor = done[len(done)-1].End
	}
	if cursor >= out.desc.TotalSize {
		return types.Interval{}, false
	}
	return types.Interval{Begin: cursor, End: out.desc.TotalSize}, true
}

// CheckResends scans incoming BLOBs that have gone idle beyond the
// manipulator's idle timeout without completing, and sends one coalesced
// resend request per BLOB for its missing intervals (spec §4.3 "Resend
// requests"). It returns whether any resend was sent.
func (m *Manipulator) CheckResends(now time.Time, send SendFunc) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sent := false
	for _, in := range m.incoming {
		if in.desc.Completed || in.resendSent || in.desc.TotalSize == 0 {
			continue
		}
		if now.Sub(in.lastFragmentAt) < m.idleTimeout {
			continue
		}
		missing := in.desc.DoneParts.Missing(in.desc.TotalSize)
		if len(missing) == 0 {
			continue
		}
		req := resendRequest{
			SourceBlobID: in.desc.SourceBlobID,
			TargetBlobID: in.desc.TargetBlobID,
			Missing:      missing,
		}
		msg := types.NewMessage(m.resendMsgID, in.desc.TargetID, in.desc.SourceID, encodeResendRequest(req))
		msg.Priority = in.desc.Priority
		if send(msg) {
			in.resendSent = true
			sent = true
		}
	}
	return sent
}

// HandleComplete delivers every finished, not-yet-delivered incoming BLOB
// to its target-IO's HandleFinished hook and returns how many were
// delivered (spec §4.3 "handle_complete"). Delivery is idempotent per
// descriptor: a duplicate fragment arriving within the linger window never
// triggers a second HandleFinished call.
func (m *Manipulator) HandleComplete() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	delivered := 0
	for _, in := range m.incoming {
		if !in.desc.Completed || in.desc.Delivered {
			continue
		}
		in.desc.MarkDelivered()
		in.io.HandleFinished(in.desc.MessageID, in.desc.Age(now), m.fragInfo(in), m.blobInfo(in.desc))
		delivered++
	}
	return delivered
}

// FetchAll yields every completed BLOB that HandleComplete has already
// delivered to its target-IO, as a plain (BlobInfo) event for upstream
// dispatch — used by a router forwarding a finished router-originated BLOB
// onward as an ordinary message rather than terminating it locally (spec
// §4.3 "fetch_all"). Each descriptor is surfaced at most once.
func (m *Manipulator) FetchAll(handler func(info BlobInfo)) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for key, in := range m.incoming {
		if !in.desc.Completed || !in.desc.Delivered {
			continue
		}
		if !in.fetched {
			handler(m.blobInfo(in.desc))
			in.fetched = true
			count++
		}
		if in.desc.LingerExpired(time.Now()) {
			delete(m.incoming, key)
		}
	}
	return count
}
