package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// GobCodec is a leaner binary frame used by the local-IPC connection kind,
// where bandwidth over an OS message queue is at more of a premium than
// with JSON's self-describing text.
type GobCodec struct{}

// NewGobCodec returns the binary wire codec.
func NewGobCodec() *GobCodec { return &GobCodec{} }

func (GobCodec) ID() types.SerializerID { return 2 }

func (GobCodec) Encode(m types.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(toWire(m)); err != nil {
		return nil, fmt.Errorf("gob codec encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobCodec) Decode(frame []byte) (types.Message, error) {
	var w wireMessage
	if err := gob.NewDecoder(bytes.NewReader(frame)).Decode(&w); err != nil {
		return types.Message{}, fmt.Errorf("gob codec decode: %w", err)
	}
	return fromWire(w), nil
}

var _ Codec = (*GobCodec)(nil)
