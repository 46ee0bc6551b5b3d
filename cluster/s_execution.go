package cluster

import (
	"context"

	"github.com/go-sif/rdd/internal/partition"
	"github.com/go-sif/rdd/internal/rpc"
	iworker "github.com/go-sif/rdd/internal/worker"
	log "github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// workerServer serves the WorkerService of a worker node
type workerServer struct {
	node       Node
	runtime    *iworker.Runtime
	serializer *partition.LZ4PartitionSerializer
}

// createWorkerServer creates a new workerServer
func createWorkerServer(node Node, runtime *iworker.Runtime) *workerServer {
	return &workerServer{node: node, runtime: runtime, serializer: partition.NewLZ4PartitionSerializer()}
}

// RunTask runs a task on this worker, streaming its result back. Task failures are part of the
// response, so that their type survives the trip back to the coordinator.
func (s *workerServer) RunTask(req *rpc.RunTaskRequest, stream rpc.WorkerService_RunTaskServer) error {
	return rpc.SendTaskResponse(stream, s.runTask(stream.Context(), req))
}

func (s *workerServer) runTask(ctx context.Context, req *rpc.RunTaskRequest) *rpc.RunTaskResponse {
	res, err := s.runtime.Run(ctx, req.Task)
	if err != nil {
		log.WithField("worker", s.runtime.ID()).Debugf("Task (%s) failed: %v", req.Task, err)
		return &rpc.RunTaskResponse{Err: rpc.EncodeError(err)}
	}
	resp := &rpc.RunTaskResponse{Result: res}
	if len(res.Records) > 0 {
		data, err := s.serializer.Encode(res.Records)
		if err != nil {
			return &rpc.RunTaskResponse{Err: rpc.EncodeError(err)}
		}
		res.Records = nil
		resp.Records = data
	}
	return resp
}

// Heartbeat responds with this worker's clock
func (s *workerServer) Heartbeat(ctx context.Context, req *emptypb.Empty) (*timestamppb.Timestamp, error) {
	return timestamppb.Now(), nil
}

// Unpersist drops the cached partitions of a Dataset
func (s *workerServer) Unpersist(ctx context.Context, req *rpc.UnpersistRequest) (*rpc.UnpersistResponse, error) {
	return &rpc.UnpersistResponse{Evicted: s.runtime.Unpersist(req.Dataset)}, nil
}
