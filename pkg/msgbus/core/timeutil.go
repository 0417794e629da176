package core

import "time"

// remoteWriteTimeout bounds a single Send so a stalled peer cannot block
// the caller's update loop indefinitely (spec §5 "no operation blocks").
const remoteWriteTimeout = 500 * time.Millisecond

func writeDeadline() time.Time {
	return time.Now().Add(remoteWriteTimeout)
}
