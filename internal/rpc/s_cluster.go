package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const clusterService = "rdd.ClusterService"

// ClusterServiceServer is implemented by coordinators, to which workers register
type ClusterServiceServer interface {
	RegisterWorker(ctx context.Context, req *RegisterRequest) (*timestamppb.Timestamp, error)
}

// ClusterServiceDesc describes the ClusterService
var ClusterServiceDesc = grpc.ServiceDesc{
	ServiceName: clusterService,
	HandlerType: (*ClusterServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(clusterService, "RegisterWorker",
			func() interface{} { return new(RegisterRequest) },
			func(srv interface{}, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(ClusterServiceServer).RegisterWorker(ctx, req.(*RegisterRequest))
			}),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterClusterServiceServer registers a ClusterServiceServer with a gRPC server
func RegisterClusterServiceServer(s *grpc.Server, srv ClusterServiceServer) {
	s.RegisterService(&ClusterServiceDesc, srv)
}

// ClusterServiceClient calls a remote ClusterService
type ClusterServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewClusterServiceClient creates a ClusterServiceClient over a connection
func NewClusterServiceClient(cc grpc.ClientConnInterface) *ClusterServiceClient {
	return &ClusterServiceClient{cc}
}

// RegisterWorker registers a worker with the coordinator, returning the registration time
func (c *ClusterServiceClient) RegisterWorker(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*timestamppb.Timestamp, error) {
	out := new(timestamppb.Timestamp)
	if err := c.cc.Invoke(ctx, "/"+clusterService+"/RegisterWorker", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
