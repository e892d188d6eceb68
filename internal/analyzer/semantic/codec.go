// Package semantic is the optional client for an external semantic
// analyzer sidecar: a collaborator out of scope for this module (it is
// assumed to run as its own service), reached over gRPC with requests and
// responses encoded as plain JSON rather than protoc-generated messages.
package semantic

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

// jsonCodec lets us call a gRPC service without protoc-generated stubs:
// any Go struct tagged with `json` fields can be sent or received, as long
// as both ends of the call agree on the wire shape.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
