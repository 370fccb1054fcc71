package stellarstation

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// codecName keeps the standard application/grpc+proto content type; the bytes
// on the wire are plain protobuf.
const codecName = "proto"

type wireCodec struct{}

var _ encoding.Codec = wireCodec{}

// Codec returns the gRPC codec for this package's messages. It is installed
// per server or per connection rather than registered globally, so other gRPC
// clients in the process keep using the stock protobuf codec.
func Codec() encoding.Codec { return wireCodec{} }

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("stellarstation codec: cannot marshal %T", v)
	}
	return m.Marshal()
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("stellarstation codec: cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}

func (wireCodec) Name() string { return codecName }

// ServerCodecOption makes a grpc.Server use this package's codec.
func ServerCodecOption() grpc.ServerOption {
	return grpc.ForceServerCodec(Codec())
}

// DialCodecOption makes every call on a client connection use this package's
// codec.
func DialCodecOption() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec()))
}
