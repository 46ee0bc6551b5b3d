package cluster

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-sif/rdd/internal/pstore"
	"github.com/go-sif/rdd/internal/rpc"
	iworker "github.com/go-sif/rdd/internal/worker"
	"github.com/go-sif/rdd/logging"
	uuid "github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

type worker struct {
	id            string
	opts          *NodeOptions
	server        *grpc.Server
	lifecycleLock sync.Mutex
	clusterClient *rpc.ClusterServiceClient
	logClient     *rpc.LogServiceClient
	finished      chan struct{}
}

// createWorker is a factory for Workers
func createWorker(opts *NodeOptions) (*worker, error) {
	// default certain options if not supplied
	if err := ensureDefaultNodeOptionsValues(opts); err != nil {
		return nil, err
	}
	// generate worker ID
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID: %w", err)
	}
	return &worker{id: id.String(), opts: opts, finished: make(chan struct{})}, nil
}

func (w *worker) mconnect() (*grpc.ClientConn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.RPCTimeout)
	defer cancel()
	conn, err := rpc.Dial(ctx, w.opts.coordinatorConnectionString())
	if err != nil {
		return nil, err
	}
	w.logClient = rpc.NewLogServiceClient(conn)
	w.clusterClient = rpc.NewClusterServiceClient(conn)
	return conn, nil
}

func (w *worker) register(port int) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.RPCTimeout)
	defer cancel()
	if w.clusterClient == nil {
		return fmt.Errorf("Cannot register before dialing the coordinator")
	}
	_, err := w.clusterClient.RegisterWorker(ctx, &rpc.RegisterRequest{ID: w.id, Port: port, Slots: w.opts.TaskSlots})
	return err
}

// registerWithCoordinator registers this worker, retrying at one second intervals
func (w *worker) registerWithCoordinator(port int) error {
	var err error
	for retries := 0; retries < w.opts.WorkerJoinRetries; retries++ {
		if err = w.register(port); err == nil {
			return nil
		}
		log.WithField("worker", w.id).Debugf("Unable to register with coordinator: %v", err)
		time.Sleep(time.Second)
	}
	return fmt.Errorf("Unable to register with coordinator at %s: %w", w.opts.coordinatorConnectionString(), err)
}

// ID returns the ID of this worker
func (w *worker) ID() string {
	return w.id
}

// IsCoordinator returns true for coordinators
func (w *worker) IsCoordinator() bool {
	return false
}

// Start the worker - will block the current thread
func (w *worker) Start() error {
	defer close(w.finished)
	// connect to coordinator
	conn, err := w.mconnect()
	if err != nil {
		return err
	}
	defer conn.Close()
	// start worker server
	lis, err := listen(w.opts.connectionString(), w.opts.MaxConnections)
	if err != nil {
		return err
	}
	store, err := pstore.New(&pstore.Config{MemoryBudget: w.opts.CacheMemory})
	if err != nil {
		lis.Close()
		return err
	}
	fetcher := newBlockFetcher()
	defer fetcher.Close()
	runtime := iworker.NewRuntime(w.id, store, fetcher)

	w.lifecycleLock.Lock()
	w.server = rpc.NewServer()
	server := w.server
	w.lifecycleLock.Unlock()
	rpc.RegisterWorkerServiceServer(server, createWorkerServer(w, runtime))

	served := make(chan error, 1)
	go func() {
		served <- server.Serve(lis)
	}()
	// register with coordinator after we are serving
	if err := w.registerWithCoordinator(lis.Addr().(*net.TCPAddr).Port); err != nil {
		w.Stop()
		<-served
		return err
	}
	if len(w.opts.LogForwardLevel) > 0 {
		level, _ := logging.ParseLevel(w.opts.LogForwardLevel)
		forwarder := startLogForwarder(w.logClient, w.id, level, w.opts.RPCTimeout)
		defer forwarder.stop()
	}
	log.WithField("worker", w.id).Infof("Worker serving at %s", lis.Addr())
	if err := <-served; err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// GracefulStop the worker, waiting for RPCs to finish
func (w *worker) GracefulStop() error {
	w.lifecycleLock.Lock()
	defer w.lifecycleLock.Unlock()
	if w.server != nil {
		w.server.GracefulStop()
		w.server = nil
	}
	return nil
}

// Stop the worker immediately
func (w *worker) Stop() error {
	w.lifecycleLock.Lock()
	defer w.lifecycleLock.Unlock()
	if w.server != nil {
		w.server.Stop()
		w.server = nil
	}
	return nil
}

// Run blocks until the worker is shut down. Jobs only run on coordinators, so job is ignored.
func (w *worker) Run(ctx context.Context, job Job) error {
	select {
	case <-w.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
