package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// unary describes a unary method. newRequest allocates the request message, and call invokes
// the server implementation.
func unary(service string, method string, newRequest func() interface{}, call func(srv interface{}, ctx context.Context, req interface{}) (interface{}, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := newRequest()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv, ctx, req)
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// NewServer creates a gRPC server accepting messages up to MaxMessageBytes. Messages are decoded
// by the codec matching each request's content-subtype, so no server option is needed to select it.
func NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.MaxRecvMsgSize(MaxMessageBytes),
		grpc.MaxSendMsgSize(MaxMessageBytes),
	}, opts...)
	return grpc.NewServer(opts...)
}

// serverStream opens a server-streaming call, sending its only request
func serverStream(ctx context.Context, cc grpc.ClientConnInterface, desc *grpc.StreamDesc, method string, in interface{}, opts []grpc.CallOption) (grpc.ClientStream, error) {
	stream, err := cc.NewStream(ctx, desc, method, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return stream, nil
}
