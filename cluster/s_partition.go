package cluster

import (
	"github.com/go-sif/rdd/internal/rpc"
	"github.com/go-sif/rdd/internal/shuffle"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FetchBlock streams a shuffle block written by this worker to a peer
func (s *workerServer) FetchBlock(req *rpc.FetchBlockRequest, stream rpc.WorkerService_FetchBlockServer) error {
	id := shuffle.BlockID{Shuffle: req.Shuffle, Mapper: req.Mapper, Target: req.Target}
	data, ok := s.runtime.ServeBlock(id)
	if !ok {
		return status.Errorf(codes.NotFound, "Block %s is not held by worker %s", id, s.runtime.ID())
	}
	return rpc.SendBlock(stream, data)
}
