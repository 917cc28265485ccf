package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"party-arena/internal/game"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Envelope is every server-to-client WebSocket message
type Envelope struct {
	Event string `json:"event" msgpack:"event"`
	Data  any    `json:"data" msgpack:"data"`
}

// Outbound envelope events. Room events use their own wire names.
const (
	EventState    = "state"
	EventJoined   = "joined"
	EventRejected = "join_rejected"
	EventError    = "error"
)

// Codec encodes envelopes and decodes client inputs for one session
type Codec interface {
	Name() string
	MessageType() int
	Encode(env Envelope) ([]byte, error)
	DecodeInput(data []byte) (game.Input, error)
}

// Codec names accepted in the ?codec= query parameter
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// CodecByName returns the named codec. Empty selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return jsonCodec{}, nil
	case CodecMsgpack:
		return msgpackCodec{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

type jsonCodec struct{}

func (jsonCodec) Name() string     { return CodecJSON }
func (jsonCodec) MessageType() int { return websocket.TextMessage }

func (jsonCodec) Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (jsonCodec) DecodeInput(data []byte) (game.Input, error) {
	var in game.Input
	err := json.Unmarshal(data, &in)
	return in, err
}

// msgpackCodec sends binary frames. Game types only carry json tags, so the
// encoder reads those to keep field names identical across codecs.
type msgpackCodec struct{}

func (msgpackCodec) Name() string     { return CodecMsgpack }
func (msgpackCodec) MessageType() int { return websocket.BinaryMessage }

func (msgpackCodec) Encode(env Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetOmitEmpty(true)
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) DecodeInput(data []byte) (game.Input, error) {
	var in game.Input
	err := msgpack.Unmarshal(data, &in)
	return in, err
}

// encodedFrames caches one encoding per codec so a broadcast encodes at most
// twice no matter how many sessions receive it
type encodedFrames struct {
	env  Envelope
	data map[string][]byte
}

func newEncodedFrames(env Envelope) *encodedFrames {
	return &encodedFrames{env: env, data: make(map[string][]byte, 2)}
}

func (f *encodedFrames) get(c Codec) ([]byte, error) {
	if b, ok := f.data[c.Name()]; ok {
		return b, nil
	}
	b, err := c.Encode(f.env)
	if err != nil {
		return nil, err
	}
	f.data[c.Name()] = b
	return b, nil
}
