package types

import (
	"sort"
	"time"
)

// BlobOptions is the bitfield carried on a BLOB's first fragment.
type BlobOptions uint8

const (
	BlobCompressed   BlobOptions = 1 << 0
	BlobWithMetadata BlobOptions = 1 << 1
)

// Interval is a half-open byte range [Begin, End) of a BLOB.
type Interval struct {
	Begin uint64
	End   uint64
}

// Len returns the number of bytes the interval covers.
func (iv Interval) Len() uint64 {
	if iv.End < iv.Begin {
		return 0
	}
	return iv.End - iv.Begin
}

// Overlaps reports whether iv and other share any byte.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Begin < other.End && other.Begin < iv.End
}

// Adjacent reports whether iv and other touch with no gap, so that merging
// them is valid (the disjoint-ascending invariant permits touching
// intervals to coalesce into one).
func (iv Interval) Adjacent(other Interval) bool {
	return iv.End == other.Begin || other.End == iv.Begin
}

// IntervalSet is a disjoint, strictly-ascending list of byte ranges, used
// to track the done/todo parts of an in-flight BLOB (spec §3, §8).
type IntervalSet struct {
	parts []Interval
}

// NewIntervalSet returns an empty set.
func NewIntervalSet() *IntervalSet {
	return &IntervalSet{}
}

// Intervals returns a defensive copy of the disjoint ascending list.
func (s *IntervalSet) Intervals() []Interval {
	out := make([]Interval, len(s.parts))
	copy(out, s.parts)
	return out
}

// Contains reports whether every byte of iv is already covered.
func (s *IntervalSet) Contains(iv Interval) bool {
	for _, p := range s.parts {
		if p.Begin <= iv.Begin && iv.End <= p.End {
			return true
		}
	}
	return false
}

// OverlapPortion returns the sub-interval of iv that is already covered by
// the set, and whether any overlap exists at all. Used to validate a
// resent fragment against bytes already stored (spec §4.3 step 1).
func (s *IntervalSet) OverlapPortion(iv Interval) (Interval, bool) {
	for _, p := range s.parts {
		if p.Overlaps(iv) {
			begin := iv.Begin
			if p.Begin > begin {
				begin = p.Begin
			}
			end := iv.End
			if p.End < end {
				end = p.End
			}
			return Interval{Begin: begin, End: end}, true
		}
	}
	return Interval{}, false
}

// Add merges iv into the set, maintaining the disjoint-ascending invariant.
func (s *IntervalSet) Add(iv Interval) {
	if iv.Len() == 0 {
		return
	}
	merged := append(append([]Interval{}, s.parts...), iv)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Begin < merged[j].Begin })

	out := merged[:0:0]
	cur := merged[0]
	for _, next := range merged[1:] {
		if next.Begin <= cur.End || cur.Adjacent(next) {
			if next.End > cur.End {
				cur.End = next.End
			}
			continue
		}
		out = append(out, cur)
		cur = next
	}
	out = append(out, cur)
	s.parts = out
}

// CoversFull reports whether the merged set equals exactly [0, total).
func (s *IntervalSet) CoversFull(total uint64) bool {
	return len(s.parts) == 1 && s.parts[0].Begin == 0 && s.parts[0].End == total
}

// Missing returns the coalesced gaps in [0, total) not yet covered, used to
// build a resend request (spec §4.3).
func (s *IntervalSet) Missing(total uint64) []Interval {
	var gaps []Interval
	cursor := uint64(0)
	for _, p := range s.parts {
		if p.Begin > cursor {
			gaps = append(gaps, Interval{Begin: cursor, End: p.Begin})
		}
		if p.End > cursor {
			cursor = p.End
		}
	}
	if cursor < total {
		gaps = append(gaps, Interval{Begin: cursor, End: total})
	}
	return gaps
}

// BlobPrepStatus is the outcome of a source-IO's pre-stage step (e.g.
// compression) reported back to the manipulator's update loop.
type BlobPrepStatus uint8

const (
	BlobPrepWorking BlobPrepStatus = iota
	BlobPrepFinished
	BlobPrepFailed
)

// BlobDescriptor tracks one in-flight BLOB, either direction (spec §3).
type BlobDescriptor struct {
	SourceID  EndpointID
	TargetID  EndpointID
	MessageID MessageID

	TotalSize uint64
	Options   BlobOptions
	Priority  Priority

	SourceBlobID BlobID
	TargetBlobID BlobID

	DoneParts *IntervalSet
	TodoParts *IntervalSet

	CreatedAt   time.Time
	LifetimeMax time.Duration
	LingerUntil time.Time
	StepDeadline time.Time

	PrepProgress float64
	PrepStatus   BlobPrepStatus

	Completed bool
	Delivered bool
}

// DefaultLingerTime is how long a completed incoming BLOB descriptor is
// retained to absorb duplicate fragments before being destroyed.
const DefaultLingerTime = 15 * time.Second

// DefaultPrepareStepTime bounds one preparation pre-stage step.
const DefaultPrepareStepTime = 5 * time.Second

// NewBlobDescriptor builds a fresh descriptor with empty interval sets.
func NewBlobDescriptor(source, target EndpointID, msgID MessageID, total uint64, opts BlobOptions, prio Priority, maxTime time.Duration) *BlobDescriptor {
	now := time.Now()
	return &BlobDescriptor{
		SourceID:     source,
		TargetID:     target,
		MessageID:    msgID,
		TotalSize:    total,
		Options:      opts,
		Priority:     prio,
		DoneParts:    NewIntervalSet(),
		TodoParts:    NewIntervalSet(),
		CreatedAt:    now,
		LifetimeMax:  maxTime,
		StepDeadline: now.Add(DefaultPrepareStepTime),
	}
}

// Expired reports whether the BLOB's total lifetime has elapsed without
// completion.
func (b *BlobDescriptor) Expired(now time.Time) bool {
	if b.LifetimeMax <= 0 || b.Completed {
		return false
	}
	return now.Sub(b.CreatedAt) > b.LifetimeMax
}

// LingerExpired reports whether a completed descriptor's grace window to
// absorb duplicate fragments has elapsed.
func (b *BlobDescriptor) LingerExpired(now time.Time) bool {
	return b.Completed && !b.LingerUntil.IsZero() && now.After(b.LingerUntil)
}

// MarkComplete flags the descriptor done and starts its linger window.
func (b *BlobDescriptor) MarkComplete(now time.Time) {
	b.Completed = true
	b.LingerUntil = now.Add(DefaultLingerTime)
}

// MarkDelivered records that HandleFinished has already fired for this
// descriptor, so a later linger-window duplicate never fires it twice.
func (b *BlobDescriptor) MarkDelivered() {
	b.Delivered = true
}

// Age reports how long the BLOB has existed, quantised the same way
// message ages are (spec §3's age field).
func (b *BlobDescriptor) Age(now time.Time) Age {
	return NewAge(now.Sub(b.CreatedAt))
}

// FlowInfo is the periodic router broadcast of aggregate bus health used
// for endpoint BLOB pacing (spec §4.2, §9).
type FlowInfo struct {
	AvgMsgAgeMs uint64
}
