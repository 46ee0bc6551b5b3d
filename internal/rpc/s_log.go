package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const logService = "rdd.LogService"

// LogServiceServer is implemented by coordinators, which receive the logs of their workers
type LogServiceServer interface {
	Log(stream LogService_LogServer) error
}

// LogService_LogServer is the server side of a stream of LogMessages
type LogService_LogServer interface {
	Recv() (*LogMessage, error)
	SendAndClose(*LogAck) error
	Context() context.Context
}

type logServiceLogServer struct {
	grpc.ServerStream
}

func (s *logServiceLogServer) Recv() (*LogMessage, error) {
	m := new(LogMessage)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *logServiceLogServer) SendAndClose(ack *LogAck) error {
	return s.ServerStream.SendMsg(ack)
}

// LogServiceDesc describes the LogService
var LogServiceDesc = grpc.ServiceDesc{
	ServiceName: logService,
	HandlerType: (*LogServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "Log",
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				return srv.(LogServiceServer).Log(&logServiceLogServer{stream})
			},
			ClientStreams: true,
		},
	},
}

// RegisterLogServiceServer registers a LogServiceServer with a gRPC server
func RegisterLogServiceServer(s *grpc.Server, srv LogServiceServer) {
	s.RegisterService(&LogServiceDesc, srv)
}

// LogServiceClient calls a remote LogService
type LogServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLogServiceClient creates a LogServiceClient over a connection
func NewLogServiceClient(cc grpc.ClientConnInterface) *LogServiceClient {
	return &LogServiceClient{cc}
}

// LogStream is the client side of a stream of LogMessages
type LogStream struct {
	stream grpc.ClientStream
}

// Log opens a stream of LogMessages
func (c *LogServiceClient) Log(ctx context.Context, opts ...grpc.CallOption) (*LogStream, error) {
	stream, err := c.cc.NewStream(ctx, &LogServiceDesc.Streams[0], "/"+logService+"/Log", opts...)
	if err != nil {
		return nil, err
	}
	return &LogStream{stream}, nil
}

// Send sends a LogMessage
func (s *LogStream) Send(m *LogMessage) error {
	return s.stream.SendMsg(m)
}

// CloseAndRecv closes the stream, returning the number of messages the coordinator received
func (s *LogStream) CloseAndRecv() (*LogAck, error) {
	if err := s.stream.CloseSend(); err != nil {
		return nil, err
	}
	ack := new(LogAck)
	if err := s.stream.RecvMsg(ack); err != nil {
		return nil, err
	}
	return ack, nil
}
