package cluster

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/go-sif/rdd/internal/rpc"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/peer"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type clusterServer struct {
	lock    sync.Mutex
	workers map[string]rpc.WorkerDescriptor
	joined  chan struct{} // signalled whenever a worker registers
}

// createClusterServer creates a new cluster server
func createClusterServer() *clusterServer {
	return &clusterServer{workers: make(map[string]rpc.WorkerDescriptor), joined: make(chan struct{}, 1)}
}

// RegisterWorker registers new workers with the cluster
func (s *clusterServer) RegisterWorker(ctx context.Context, req *rpc.RegisterRequest) (*timestamppb.Timestamp, error) {
	peer, ok := peer.FromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("Unable to fetch peer data for connecting worker %s", req.ID)
	}
	tcpAddr, ok := peer.Addr.(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("Connecting worker %s is not using TCP", req.ID)
	}
	desc := rpc.WorkerDescriptor{
		ID:    req.ID,
		Host:  tcpAddr.IP.String(),
		Port:  req.Port,
		Slots: req.Slots,
	}
	s.lock.Lock()
	if _, exists := s.workers[req.ID]; exists {
		s.lock.Unlock()
		return nil, fmt.Errorf("Worker %s is already registered", req.ID)
	}
	s.workers[req.ID] = desc
	s.lock.Unlock()
	select {
	case s.joined <- struct{}{}:
	default:
	}
	log.WithField("worker", desc.ID).Infof("Registered worker at %s:%d with %d task slot(s)", desc.Host, desc.Port, desc.Slots)
	return timestamppb.Now(), nil
}

// NumberOfWorkers returns the current worker count
func (s *clusterServer) NumberOfWorkers() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.workers)
}

// Workers retrieves the registered workers, ordered by id
func (s *clusterServer) Workers() []rpc.WorkerDescriptor {
	s.lock.Lock()
	defer s.lock.Unlock()
	result := make([]rpc.WorkerDescriptor, 0, len(s.workers))
	for _, w := range s.workers {
		result = append(result, w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Deregister forgets a worker, so that it may register again
func (s *clusterServer) Deregister(id string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.workers, id)
}

func (s *clusterServer) waitForWorkers(ctx context.Context, numWorkers int) error {
	for {
		if s.NumberOfWorkers() >= numWorkers {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d of %d workers joined: %w", s.NumberOfWorkers(), numWorkers, ctx.Err())
		case <-s.joined:
		case <-time.After(time.Second):
			// check again
		}
	}
}
