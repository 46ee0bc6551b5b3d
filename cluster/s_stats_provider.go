package cluster

import (
	"context"

	"github.com/go-sif/rdd/internal/rpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

// ProvideStatistics describes the data held by this worker
func (s *workerServer) ProvideStatistics(ctx context.Context, req *emptypb.Empty) (*rpc.WorkerStatistics, error) {
	return &rpc.WorkerStatistics{
		CachedPartitions: s.runtime.CachedPartitions(),
		ShuffleBytes:     s.runtime.ShuffleBytes(),
	}, nil
}
