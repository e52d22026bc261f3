// Package rpc exposes the RPC surface of spec §6 over real
// google.golang.org/grpc transport without a protoc/protobuf code-generation
// step: messages are plain Go structs marshalled as JSON through a
// hand-registered grpc codec, and the two services (ChatService,
// MsgGatewayService) are wired with hand-written grpc.ServiceDesc values
// instead of .pb.go-generated ones.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec implements encoding.Codec. It registers itself under the name
// "proto" so it becomes the process-wide default content-subtype grpc picks
// when a call specifies none — no CallOption or ForceServerCodec wiring is
// needed at every call site.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
