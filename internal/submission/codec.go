package submission

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec name is registered for gRPC content-subtype "json", selected
// by clients via grpc.CallContentSubtype("json") and advertised in the
// request's content-type as application/grpc+json. This is the standard
// workaround for exposing a gRPC service without a .proto-generated
// protobuf message type: grpc-go's codec registry dispatches purely on
// this string, independent of proto.Message.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
