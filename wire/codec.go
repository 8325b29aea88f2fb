// Package wire encodes relay events into websocket frames.
//
// Every frame is an envelope {"event": <name>, "data": <payload>}. Two codecs
// exist: JSON in text frames (the default) and MessagePack in binary frames,
// selected through the websocket subprotocol. Payload decoding is deferred:
// a decoded frame keeps its raw data and binds it on demand, so a handler
// only pays for the payload type it expects.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nameishyam/code-together/domain"
)

const (
	JSON    = "json"
	MsgPack = "msgpack"
)

var (
	ErrUnknownCodec = errors.New("wire: unknown codec")
	ErrNoEvent      = errors.New("wire: frame has no event name")
)

// Subprotocols lists the codec names offered during the websocket handshake,
// in order of preference.
var Subprotocols = []string{JSON, MsgPack}

type Codec interface {
	Name() string
	// FrameType is the websocket message type frames are sent as.
	FrameType() int
	Encode(msg domain.Outbound) ([]byte, error)
	Decode(frame []byte) (*Frame, error)
}

// Frame is a decoded envelope whose payload has not been bound yet.
type Frame struct {
	event string
	raw   []byte
	bind  func(raw []byte, v any) error
}

func (f *Frame) Event() string { return f.event }

// Bind decodes the payload into v. A frame without data is rejected.
func (f *Frame) Bind(v any) error {
	if len(f.raw) == 0 {
		return fmt.Errorf("wire: %s: empty payload", f.event)
	}
	if err := f.bind(f.raw, v); err != nil {
		return fmt.Errorf("wire: %s: %w", f.event, err)
	}
	return nil
}

// ForName returns the codec negotiated as name. An empty name selects JSON.
func ForName(name string) (Codec, error) {
	switch name {
	case "", JSON:
		return jsonCodec{}, nil
	case MsgPack:
		return msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

type jsonEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string   { return JSON }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) Encode(msg domain.Outbound) ([]byte, error) {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", msg.Event, err)
	}
	return json.Marshal(jsonEnvelope{Event: msg.Event, Data: data})
}

func (jsonCodec) Decode(frame []byte) (*Frame, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}
	if env.Event == "" {
		return nil, ErrNoEvent
	}
	if bytes.Equal(env.Data, []byte("null")) {
		env.Data = nil
	}
	return &Frame{event: env.Event, raw: env.Data, bind: json.Unmarshal}, nil
}

type msgpackEnvelope struct {
	Event string             `msgpack:"event"`
	Data  msgpack.RawMessage `msgpack:"data,omitempty"`
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string   { return MsgPack }
func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) Encode(msg domain.Outbound) ([]byte, error) {
	data, err := msgpack.Marshal(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", msg.Event, err)
	}
	return msgpack.Marshal(msgpackEnvelope{Event: msg.Event, Data: data})
}

func (msgpackCodec) Decode(frame []byte) (*Frame, error) {
	var env msgpackEnvelope
	if err := msgpack.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}
	if env.Event == "" {
		return nil, ErrNoEvent
	}
	// 0xc0 is the msgpack nil marker.
	if len(env.Data) == 1 && env.Data[0] == 0xc0 {
		env.Data = nil
	}
	return &Frame{event: env.Event, raw: env.Data, bind: msgpack.Unmarshal}, nil
}
