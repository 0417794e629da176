package blob

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// ErrShortFragment is returned when a fragment's payload is too small to
// contain the fixed prefix.
var ErrShortFragment = errors.New("blob fragment payload too short")

// fragmentHeaderFixed is the portion of the prefix present on every
// fragment: source-blob-id, target-blob-id, offset, total size (spec
// §4.3). The inner message id and options are only meaningful/present on
// the first fragment (offset 0), per the "first = offset 0" convention.
const fragmentHeaderFixed = 8 + 8 + 8 + 8 // sourceBlobID, targetBlobID, offset, totalSize

// encodeFragment builds one fragment's outer-message payload: the fixed
// prefix, then (only when offset==0) the inner message id and options,
// then the fragment bytes.
func encodeFragment(sourceBlobID, targetBlobID types.BlobID, offset, totalSize uint64, opts types.BlobOptions, innerID types.MessageID, data []byte) []byte {
	buf := make([]byte, fragmentHeaderFixed)
	binary.BigEndian.PutUint64(buf[0:8], uint64(sourceBlobID))
	binary.BigEndian.PutUint64(buf[8:16], uint64(targetBlobID))
	binary.BigEndian.PutUint64(buf[16:24], offset)
	binary.BigEndian.PutUint64(buf[24:32], totalSize)

	if offset == 0 {
		class := []byte(innerID.Class)
		method := []byte(innerID.Method)
		buf = append(buf, byte(opts))
		buf = appendLenPrefixed(buf, class)
		buf = appendLenPrefixed(buf, method)
	}
	buf = append(buf, data...)
	return buf
}

func appendLenPrefixed(buf, data []byte) []byte {
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(data)))
	buf = append(buf, lenBuf...)
	buf = append(buf, data...)
	return buf
}

func readLenPrefixed(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 2 {
		return nil, nil, ErrShortFragment
	}
	n := binary.BigEndian.Uint16(buf[0:2])
	if len(buf) < int(2+n) {
		return nil, nil, ErrShortFragment
	}
	return buf[2 : 2+n], buf[2+n:], nil
}

// decodedFragment is the parsed view of one fragment's payload.
type decodedFragment struct {
	SourceBlobID types.BlobID
	TargetBlobID types.BlobID
	Offset       uint64
	TotalSize    uint64
	IsFirst      bool
	Options      types.BlobOptions
	InnerID      types.MessageID
	Data         []byte
}

func decodeFragment(payload []byte) (decodedFragment, error) {
	if len(payload) < fragmentHeaderFixed {
		return decodedFragment{}, fmt.Errorf("decode fragment: %w", ErrShortFragment)
	}
	out := decodedFragment{
		SourceBlobID: types.BlobID(binary.BigEndian.Uint64(payload[0:8])),
		TargetBlobID: types.BlobID(binary.BigEndian.Uint64(payload[8:16])),
		Offset:       binary.BigEndian.Uint64(payload[16:24]),
		TotalSize:    binary.BigEndian.Uint64(payload[24:32]),
	}
	rest := payload[fragmentHeaderFixed:]
	if out.Offset == 0 {
		out.IsFirst = true
		if len(rest) < 1 {
			return decodedFragment{}, fmt.Errorf("decode fragment options: %w", ErrShortFragment)
		}
		out.Options = types.BlobOptions(rest[0])
		rest = rest[1:]
		class, rest2, err := readLenPrefixed(rest)
		if err != nil {
			return decodedFragment{}, fmt.Errorf("decode fragment class: %w", err)
		}
		method, rest3, err := readLenPrefixed(rest2)
		if err != nil {
			return decodedFragment{}, fmt.Errorf("decode fragment method: %w", err)
		}
		out.InnerID = types.NewMessageID(types.MessageClass(class), string(method))
		rest = rest3
	}
	out.Data = rest
	return out, nil
}

// resendRequest is the payload of a "resend" message: the missing
// intervals, coalesced (spec §4.3 "Resend requests").
type resendRequest struct {
	SourceBlobID types.BlobID
	TargetBlobID types.BlobID
	Missing      []types.Interval
}

func encodeResendRequest(r resendRequest) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(r.SourceBlobID))
	binary.BigEndian.PutUint64(buf[8:16], uint64(r.TargetBlobID))
	countBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(countBuf, uint32(len(r.Missing)))
	buf = append(buf, countBuf...)
	for _, iv := range r.Missing {
		pair := make([]byte, 16)
		binary.BigEndian.PutUint64(pair[0:8], iv.Begin)
		binary.BigEndian.PutUint64(pair[8:16], iv.End)
		buf = append(buf, pair...)
	}
	return buf
}

func decodeResendRequest(payload []byte) (resendRequest, error) {
	if len(payload) < 20 {
		return resendRequest{}, fmt.Errorf("decode resend: %w", ErrShortFragment)
	}
	out := resendRequest{
		SourceBlobID: types.BlobID(binary.BigEndian.Uint64(payload[0:8])),
		TargetBlobID: types.BlobID(binary.BigEndian.Uint64(payload[8:16])),
	}
	count := binary.BigEndian.Uint32(payload[16:20])
	offset := 20
	for i := uint32(0); i < count; i++ {
		if len(payload) < offset+16 {
			return resendRequest{}, fmt.Errorf("decode resend interval %d: %w", i, ErrShortFragment)
		}
		begin := binary.BigEndian.Uint64(payload[offset : offset+8])
		end := binary.BigEndian.Uint64(payload[offset+8 : offset+16])
		out.Missing = append(out.Missing, types.Interval{Begin: begin, End: end})
		offset += 16
	}
	return out, nil
}
