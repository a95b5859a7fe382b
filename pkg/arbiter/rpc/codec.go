// Package rpc is the arbiter socket of spec.md §4.5/§6.1: the
// latency-critical direct channel that carries PREPARE votes and
// COMMIT/ABORT notifications between nodes, independent of the
// shared-config-store heartbeat path. Transport is a real
// google.golang.org/grpc service, but messages are plain Go structs
// marshaled with a hand-registered JSON codec rather than
// protoc-generated protobuf: the arbiter channel's payloads are small
// and schema-stable, so there is no proto toolchain step to run.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

// jsonCodec implements encoding.Codec, registered once at package
// init so grpc.CallContentSubtype(codecName) selects it on both ends
// of the arbiter socket.
type jsonCodec struct{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
