// Package connect provides Connect RPC service implementations.
package connect

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec marshals plain Go messages. The built-in codecs only accept
// protobuf messages.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	return json.Unmarshal(data, msg)
}

// WithJSON is the codec option shared by handlers and clients.
func WithJSON() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
