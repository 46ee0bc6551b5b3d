package cluster

import (
	"context"

	log "github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Stop shuts this worker down once the response is sent
func (s *workerServer) Stop(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error) {
	log.WithField("worker", s.runtime.ID()).Debug("Received request to stop...")
	// we can't wait for the error to respond, because this counts as an open RPC, which blocks GracefulStop
	go s.node.GracefulStop()
	return &emptypb.Empty{}, nil
}
