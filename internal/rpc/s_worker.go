package rpc

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const workerService = "rdd.WorkerService"

// WorkerServiceServer is implemented by workers
type WorkerServiceServer interface {
	RunTask(req *RunTaskRequest, stream WorkerService_RunTaskServer) error
	Heartbeat(ctx context.Context, req *emptypb.Empty) (*timestamppb.Timestamp, error)
	Unpersist(ctx context.Context, req *UnpersistRequest) (*UnpersistResponse, error)
	ProvideStatistics(ctx context.Context, req *emptypb.Empty) (*WorkerStatistics, error)
	Stop(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error)
	FetchBlock(req *FetchBlockRequest, stream WorkerService_FetchBlockServer) error
}

// WorkerService_FetchBlockServer is the server side of a streamed shuffle block
type WorkerService_FetchBlockServer interface {
	Send(*BlockChunk) error
	Context() context.Context
}

// WorkerService_RunTaskServer is the server side of a streamed Task result
type WorkerService_RunTaskServer interface {
	Send(*RunTaskResponse) error
	Context() context.Context
}

type workerServiceRunTaskServer struct {
	grpc.ServerStream
}

func (s *workerServiceRunTaskServer) Send(r *RunTaskResponse) error {
	return s.ServerStream.SendMsg(r)
}

type workerServiceFetchBlockServer struct {
	grpc.ServerStream
}

func (s *workerServiceFetchBlockServer) Send(c *BlockChunk) error {
	return s.ServerStream.SendMsg(c)
}

// WorkerServiceDesc describes the WorkerService
var WorkerServiceDesc = grpc.ServiceDesc{
	ServiceName: workerService,
	HandlerType: (*WorkerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(workerService, "Heartbeat",
			func() interface{} { return new(emptypb.Empty) },
			func(srv interface{}, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(WorkerServiceServer).Heartbeat(ctx, req.(*emptypb.Empty))
			}),
		unary(workerService, "Unpersist",
			func() interface{} { return new(UnpersistRequest) },
			func(srv interface{}, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(WorkerServiceServer).Unpersist(ctx, req.(*UnpersistRequest))
			}),
		unary(workerService, "ProvideStatistics",
			func() interface{} { return new(emptypb.Empty) },
			func(srv interface{}, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(WorkerServiceServer).ProvideStatistics(ctx, req.(*emptypb.Empty))
			}),
		unary(workerService, "Stop",
			func() interface{} { return new(emptypb.Empty) },
			func(srv interface{}, ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(WorkerServiceServer).Stop(ctx, req.(*emptypb.Empty))
			}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "FetchBlock",
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				in := new(FetchBlockRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(WorkerServiceServer).FetchBlock(in, &workerServiceFetchBlockServer{stream})
			},
			ServerStreams: true,
		},
		{
			StreamName: "RunTask",
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				in := new(RunTaskRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(WorkerServiceServer).RunTask(in, &workerServiceRunTaskServer{stream})
			},
			ServerStreams: true,
		},
	},
}

// RegisterWorkerServiceServer registers a WorkerServiceServer with a gRPC server
func RegisterWorkerServiceServer(s *grpc.Server, srv WorkerServiceServer) {
	s.RegisterService(&WorkerServiceDesc, srv)
}

// WorkerServiceClient calls a remote WorkerService
type WorkerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewWorkerServiceClient creates a WorkerServiceClient over a connection
func NewWorkerServiceClient(cc grpc.ClientConnInterface) *WorkerServiceClient {
	return &WorkerServiceClient{cc}
}

func (c *WorkerServiceClient) invoke(ctx context.Context, method string, in interface{}, out interface{}, opts []grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+workerService+"/"+method, in, out, opts...)
}

// RunTask runs a Task on the worker, reassembling the chunks of its result
func (c *WorkerServiceClient) RunTask(ctx context.Context, in *RunTaskRequest, opts ...grpc.CallOption) (*RunTaskResponse, error) {
	stream, err := serverStream(ctx, c.cc, &WorkerServiceDesc.Streams[1], "/"+workerService+"/RunTask", in, opts)
	if err != nil {
		return nil, err
	}
	out := new(RunTaskResponse)
	for {
		chunk := new(RunTaskResponse)
		err := stream.RecvMsg(chunk)
		if err == io.EOF {
			return out, nil
		} else if err != nil {
			return nil, err
		}
		if out.Records == nil && chunk.TotalSize > 0 {
			out.Records = make([]byte, 0, chunk.TotalSize)
			out.TotalSize = chunk.TotalSize
		}
		out.Records = append(out.Records, chunk.Records...)
		if chunk.Result != nil {
			out.Result = chunk.Result
		}
		if chunk.Err != nil {
			out.Err = chunk.Err
		}
	}
}

// Heartbeat checks that the worker is alive, returning its clock
func (c *WorkerServiceClient) Heartbeat(ctx context.Context, opts ...grpc.CallOption) (*timestamppb.Timestamp, error) {
	out := new(timestamppb.Timestamp)
	if err := c.invoke(ctx, "Heartbeat", &emptypb.Empty{}, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// Unpersist drops the cached partitions of a Dataset from the worker
func (c *WorkerServiceClient) Unpersist(ctx context.Context, in *UnpersistRequest, opts ...grpc.CallOption) (*UnpersistResponse, error) {
	out := new(UnpersistResponse)
	if err := c.invoke(ctx, "Unpersist", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// ProvideStatistics describes the data held by the worker
func (c *WorkerServiceClient) ProvideStatistics(ctx context.Context, opts ...grpc.CallOption) (*WorkerStatistics, error) {
	out := new(WorkerStatistics)
	if err := c.invoke(ctx, "ProvideStatistics", &emptypb.Empty{}, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// Stop asks the worker to shut down
func (c *WorkerServiceClient) Stop(ctx context.Context, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "Stop", &emptypb.Empty{}, new(emptypb.Empty), opts)
}

// FetchBlock retrieves a shuffle block, reassembling its chunks
func (c *WorkerServiceClient) FetchBlock(ctx context.Context, in *FetchBlockRequest, opts ...grpc.CallOption) ([]byte, error) {
	stream, err := serverStream(ctx, c.cc, &WorkerServiceDesc.Streams[0], "/"+workerService+"/FetchBlock", in, opts)
	if err != nil {
		return nil, err
	}
	var data []byte
	for {
		chunk := new(BlockChunk)
		err := stream.RecvMsg(chunk)
		if err == io.EOF {
			return data, nil
		} else if err != nil {
			return nil, err
		}
		if data == nil {
			data = make([]byte, 0, chunk.TotalSize)
		}
		data = append(data, chunk.Data...)
	}
}

// SendBlock streams a shuffle block in chunks of at most MaxChunkBytes
func SendBlock(stream WorkerService_FetchBlockServer, data []byte) error {
	for start := 0; ; start += MaxChunkBytes {
		end := start + MaxChunkBytes
		if end > len(data) {
			end = len(data)
		}
		if err := stream.Send(&BlockChunk{Data: data[start:end], TotalSize: len(data)}); err != nil {
			return err
		}
		if end == len(data) {
			return nil
		}
	}
}

// SendTaskResponse streams the result of a Task, splitting its records in chunks of at most
// MaxChunkBytes. The Result and Err travel with the last chunk.
func SendTaskResponse(stream WorkerService_RunTaskServer, resp *RunTaskResponse) error {
	data := resp.Records
	for start := 0; ; start += MaxChunkBytes {
		end := start + MaxChunkBytes
		if end > len(data) {
			end = len(data)
		}
		chunk := &RunTaskResponse{Records: data[start:end], TotalSize: len(data)}
		if end == len(data) {
			chunk.Result, chunk.Err = resp.Result, resp.Err
		}
		if err := stream.Send(chunk); err != nil {
			return err
		}
		if end == len(data) {
			return nil
		}
	}
}
