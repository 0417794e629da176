// Package blob implements the BLOB manipulator (spec §4.3, C3): turning a
// byte sequence larger than one message payload into fragments and back,
// with resend on loss and pluggable source/target IO strategies. It is
// grounded on the teacher library's Deliverable/StateMachine split in
// pkg/mcast/core/deliver.go (a pluggable commit sink driven by a fixed
// protocol loop) and on original_source/source/modules/eagine/core/blobs.cpp
// for the interval-merge and resend semantics the distilled spec only
// states as invariants.
package blob

import "github.com/go-msgbus/msgbus/pkg/msgbus/types"

// SourceIO supplies bytes for an outgoing BLOB (spec §3, §4.3).
type SourceIO interface {
	// FetchFragment copies up to len(dst) bytes starting at offset into
	// dst and returns how many bytes were written.
	FetchFragment(offset uint64, dst []byte) int

	// IsAtEOD reports whether offset has reached the end of the data.
	IsAtEOD(offset uint64) bool

	// TotalSize is the full BLOB size, known up front.
	TotalSize() uint64

	// Prepare runs an optional pre-stage (compression, signing,
	// certificate generation) and reports progress in [0,1] plus status.
	// Source-IOs with nothing to prepare may return (1, BlobPrepFinished)
	// immediately.
	Prepare() (progress float64, status types.BlobPrepStatus)
}

// TargetIO consumes bytes for an incoming BLOB (spec §3, §4.3).
type TargetIO interface {
	// CheckStored validates that data matches what's already stored at
	// offset, used when a fragment's range overlaps known bytes.
	CheckStored(offset uint64, data []byte) bool

	// StoreFragment commits new bytes at offset. A false return rejects
	// the fragment (e.g. the sink is full or refuses out-of-policy data).
	StoreFragment(offset uint64, data []byte, info FragmentInfo) bool

	// HandleFinished fires exactly once, when the merged intervals cover
	// the whole BLOB.
	HandleFinished(msgID types.MessageID, age types.Age, info FragmentInfo, blobInfo BlobInfo)

	// HandleCancelled fires exactly once, on total-lifetime expiry.
	HandleCancelled(blobInfo BlobInfo)
}

// FragmentInfo is metadata carried alongside one fragment, surfaced to
// TargetIO so sinks can react to BLOB-level options without reaching into
// the manipulator's internal descriptor.
type FragmentInfo struct {
	SourceID types.EndpointID
	TargetID types.EndpointID
	Options  types.BlobOptions
	Priority types.Priority
}

// BlobInfo is a read-only summary of a descriptor, passed to completion
// and cancellation hooks.
type BlobInfo struct {
	SourceID     types.EndpointID
	TargetID     types.EndpointID
	MessageID    types.MessageID
	TotalSize    uint64
	SourceBlobID types.BlobID
	TargetBlobID types.BlobID
}
