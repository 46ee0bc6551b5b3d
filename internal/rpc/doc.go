// Package rpc describes the gRPC services through which coordinators and workers communicate.
//
// Services are described by hand rather than generated: engine messages are plain Go structs
// encoded with gob, while protobuf well-known types (emptypb, timestamppb) keep their protobuf
// encoding. Both travel through the codec registered under CodecName, which clients select with
// the content-subtype call option installed by Dial.
package rpc
