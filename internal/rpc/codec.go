package rpc

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"
)

// CodecName is the gRPC content-subtype of every message exchanged by this package
const CodecName = "rdd"

const (
	protoTag byte = 'p'
	gobTag   byte = 'g'
)

// Codec encodes protobuf messages with protobuf, and everything else with gob
type Codec struct{}

func init() {
	encoding.RegisterCodec(Codec{})
}

// Name returns the name of this Codec
func (Codec) Name() string {
	return CodecName
}

// Marshal encodes a message
func (Codec) Marshal(v interface{}) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		data, err := proto.Marshal(m)
		if err != nil {
			return nil, err
		}
		return append([]byte{protoTag}, data...), nil
	}
	var buf bytes.Buffer
	buf.WriteByte(gobTag)
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("Unable to encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a message into v
func (Codec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("Unable to decode %T from an empty message", v)
	}
	switch data[0] {
	case protoTag:
		m, ok := v.(proto.Message)
		if !ok {
			return fmt.Errorf("Received a protobuf message for %T", v)
		}
		return proto.Unmarshal(data[1:], m)
	case gobTag:
		return gob.NewDecoder(bytes.NewReader(data[1:])).Decode(v)
	default:
		return fmt.Errorf("Unknown message encoding %q", data[0])
	}
}

// Dial connects to a coordinator or worker
func Dial(ctx context.Context, address string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithInsecure(),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(CodecName),
			grpc.MaxCallRecvMsgSize(MaxMessageBytes),
			grpc.MaxCallSendMsgSize(MaxMessageBytes),
		),
	}, opts...)
	conn, err := grpc.DialContext(ctx, address, opts...)
	if err != nil {
		return nil, fmt.Errorf("Unable to dial %s: %w", address, err)
	}
	return conn, nil
}
