package types

import "time"

// Priority ranks messages: idle < low < normal < high < critical. It is
// carried on the wire and selects the too-old age ceiling below; the
// endpoint outbox and the connections send in FIFO order whatever the
// priority, so a higher-priority message is not sent ahead of queued
// lower-priority ones.
type Priority uint8

const (
	PriorityIdle Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityIdle:
		return "idle"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// tooOldCeiling holds, per spec §3, the per-priority age ceiling past which
// a message is considered "too old" and must be dropped. high and critical
// never age out (open question #1 in spec §9 resolves to the defensive
// reading: never too-old for those two classes).
var tooOldCeiling = map[Priority]time.Duration{
	PriorityIdle:     10 * time.Second,
	PriorityLow:      20 * time.Second,
	PriorityNormal:   30 * time.Second,
	PriorityHigh:     -1,
	PriorityCritical: -1,
}

// TooOldCeiling returns the age past which a message of this priority is
// dropped as too old, or a negative duration if the priority never expires.
func TooOldCeiling(p Priority) time.Duration {
	return tooOldCeiling[p]
}

// AgeQuantum is the resolution age is tracked and serialized at: quarter
// seconds, saturating at AgeMax.
const AgeQuantum = 250 * time.Millisecond

// AgeMax is the saturating ceiling for the wire age_quarter_seconds field.
const AgeMax uint32 = 1<<32 - 1

// Age is a quantised, saturating, additive-across-hops duration measured in
// quarter seconds, matching the wire field age_quarter_seconds.
type Age uint32

// NewAge quantises d into Age units, saturating at AgeMax.
func NewAge(d time.Duration) Age {
	if d <= 0 {
		return 0
	}
	q := d / AgeQuantum
	if q > time.Duration(AgeMax) {
		return Age(AgeMax)
	}
	return Age(q)
}

// Duration converts the quantised age back to a time.Duration.
func (a Age) Duration() time.Duration {
	return time.Duration(a) * AgeQuantum
}

// Add accumulates another age, saturating instead of overflowing. Age is
// additive across hops: every router adds the time it held the message.
func (a Age) Add(other Age) Age {
	sum := uint64(a) + uint64(other)
	if sum > uint64(AgeMax) {
		return Age(AgeMax)
	}
	return Age(sum)
}

// TooOld reports whether this age has passed the ceiling for p. A priority
// with a negative (unbounded) ceiling is never too old.
func (a Age) TooOld(p Priority) bool {
	ceiling := TooOldCeiling(p)
	if ceiling < 0 {
		return false
	}
	return a.Duration() > ceiling
}
