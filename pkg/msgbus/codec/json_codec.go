package codec

import (
	"encoding/json"
	"fmt"

	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// JSONCodec is the default codec, grounded on the teacher transport's own
// choice of encoding/json for wire serialization. Simplest to diagnose on
// the wire; used by the remote, websocket, stdio-tunnel, and MQTT
// connection kinds.
type JSONCodec struct{}

// NewJSONCodec returns the default JSON wire codec.
func NewJSONCodec() *JSONCodec { return &JSONCodec{} }

func (JSONCodec) ID() types.SerializerID { return 1 }

func (JSONCodec) Encode(m types.Message) ([]byte, error) {
	data, err := json.Marshal(toWire(m))
	if err != nil {
		return nil, fmt.Errorf("json codec encode: %w", err)
	}
	return data, nil
}

func (JSONCodec) Decode(frame []byte) (types.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(frame, &w); err != nil {
		return types.Message{}, fmt.Errorf("json codec decode: %w", err)
	}
	return fromWire(w), nil
}

var _ Codec = (*JSONCodec)(nil)
