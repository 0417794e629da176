// Package codec implements the pluggable wire framing referenced by
// spec §6: a self-delimited record carrying a Message's header fields and
// opaque payload, round-tripping every field unchanged except Age and
// HopCount, plus the stdio-tunnel's base64-over-newline variant.
package codec

import "github.com/go-msgbus/msgbus/pkg/msgbus/types"

// Codec encodes and decodes a single Message to and from a byte frame. A
// connection is configured with one codec; SerializerID on the wire lets a
// receiver that supports more than one pick the matching decoder.
type Codec interface {
	ID() types.SerializerID
	Encode(m types.Message) ([]byte, error)
	Decode(frame []byte) (types.Message, error)
}

// wireMessage is the exact field set serialized on the wire (spec §6);
// kept distinct from types.Message so the codec package owns its own
// struct tags without constraining the in-memory representation.
type wireMessage struct {
	Class      string `json:"class"`
	Method     string `json:"method"`
	SourceID   uint64 `json:"source_id"`
	TargetID   uint64 `json:"target_id"`
	SequenceNo uint64 `json:"sequence_no"`
	Priority   uint8  `json:"priority"`
	Age        uint32 `json:"age_quarter_seconds"`
	HopCount   uint32 `json:"hop_count"`
	Serializer uint8  `json:"serializer_id"`
	Crypto     uint8  `json:"crypto_flags"`
	Payload    []byte `json:"payload"`
}

func toWire(m types.Message) wireMessage {
	return wireMessage{
		Class:      string(m.ID.Class),
		Method:     string(m.ID.Method),
		SourceID:   uint64(m.SourceID),
		TargetID:   uint64(m.TargetID),
		SequenceNo: m.SequenceNo,
		Priority:   uint8(m.Priority),
		Age:        uint32(m.Age),
		HopCount:   m.HopCount,
		Serializer: uint8(m.Serializer),
		Crypto:     uint8(m.Crypto),
		Payload:    m.Payload,
	}
}

func fromWire(w wireMessage) types.Message {
	return types.Message{
		ID:         types.NewMessageID(types.MessageClass(w.Class), w.Method),
		SourceID:   types.EndpointID(w.SourceID),
		TargetID:   types.EndpointID(w.TargetID),
		SequenceNo: w.SequenceNo,
		Priority:   types.Priority(w.Priority),
		Age:        types.Age(w.Age),
		HopCount:   w.HopCount,
		Serializer: types.SerializerID(w.Serializer),
		Crypto:     types.CryptoFlags(w.Crypto),
		Payload:    w.Payload,
	}
}
