package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/go-sif/rdd"
	"github.com/go-sif/rdd/internal/rpc"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// coordinator is a Coordinator node which has lifecycle methods
type coordinator struct {
	opts          *NodeOptions
	server        *grpc.Server
	clusterServer *clusterServer
	lifecycleLock sync.Mutex
	started       chan struct{}
	startOnce     sync.Once
	runLock       sync.Mutex
}

func createCoordinator(opts *NodeOptions) (*coordinator, error) {
	// default certain options if not supplied
	if err := ensureDefaultNodeOptionsValues(opts); err != nil {
		return nil, err
	}
	return &coordinator{opts: opts, clusterServer: createClusterServer(), started: make(chan struct{})}, nil
}

// IsCoordinator returns true for coordinators
func (c *coordinator) IsCoordinator() bool {
	return true
}

// Start the Coordinator - blocking unless run in a goroutine
func (c *coordinator) Start() error {
	lis, err := listen(c.opts.connectionString(), c.opts.MaxConnections)
	if err != nil {
		return err
	}
	c.lifecycleLock.Lock()
	c.server = rpc.NewServer()
	server := c.server
	c.lifecycleLock.Unlock()
	// register rpc handlers
	rpc.RegisterClusterServiceServer(server, c.clusterServer)
	rpc.RegisterLogServiceServer(server, createLogServer())
	// we're done bootstrapping
	c.startOnce.Do(func() { close(c.started) })
	log.Infof("Starting Coordinator at %s", c.opts.coordinatorConnectionString())
	if err = server.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// GracefulStop the Coordinator, waiting for RPCs to finish
func (c *coordinator) GracefulStop() error {
	c.lifecycleLock.Lock()
	defer c.lifecycleLock.Unlock()
	if c.server != nil {
		c.server.GracefulStop()
		c.server = nil
	}
	return nil
}

// Stop the Coordinator immediately
func (c *coordinator) Stop() error {
	c.lifecycleLock.Lock()
	defer c.lifecycleLock.Unlock()
	if c.server != nil {
		c.server.Stop()
		c.server = nil
	}
	return nil
}

// Run waits for Workers to join, then runs a Job against a Session backed by them. The
// Workers are stopped once the Job is complete.
func (c *coordinator) Run(ctx context.Context, job Job) error {
	if job == nil {
		return fmt.Errorf("Job cannot be nil")
	}
	c.runLock.Lock()
	defer c.runLock.Unlock()
	select {
	case <-c.started:
	case <-ctx.Done():
		return ctx.Err()
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.opts.WorkerJoinTimeout)
	defer cancel()
	log.Infof("Waiting for %d workers to connect...", c.opts.NumWorkers)
	if err := c.clusterServer.waitForWorkers(waitCtx, c.opts.NumWorkers); err != nil {
		return err
	}
	session, workers, err := c.connect(ctx)
	if err != nil {
		return err
	}
	log.Infof("Running job on %d workers...", len(workers))
	jobErr := job(ctx, session)
	c.describeWorkers(ctx, workers)
	if err := session.Close(); err != nil {
		if jobErr == nil {
			return err
		}
		log.Warnf("Unable to cleanly stop workers: %v", err)
	}
	return jobErr
}

// connect opens a connection to every registered Worker, and creates a Session backed by them
func (c *coordinator) connect(ctx context.Context) (*rdd.Session, []*remoteWorker, error) {
	descriptors := c.clusterServer.Workers()
	remotes := make([]*remoteWorker, 0, len(descriptors))
	workers := make([]rdd.Worker, 0, len(descriptors))
	for _, desc := range descriptors {
		w, err := dialWorker(ctx, desc, c.opts.RPCTimeout)
		if err != nil {
			closeWorkers(remotes)
			return nil, nil, err
		}
		remotes = append(remotes, w)
		workers = append(workers, w)
	}
	opts := append(append([]rdd.Option(nil), c.opts.SessionOptions...), rdd.WithCloseHook(func() error {
		return c.stopWorkers(context.Background(), remotes)
	}))
	session, err := rdd.NewSessionWithWorkers(workers, opts...)
	if err != nil {
		closeWorkers(remotes)
		return nil, nil, err
	}
	return session, remotes, nil
}

// describeWorkers logs the data held by each Worker
func (c *coordinator) describeWorkers(ctx context.Context, workers []*remoteWorker) {
	for _, w := range workers {
		stats, err := w.Statistics(ctx)
		if err != nil {
			log.WithField("worker", w.ID()).Debugf("Unable to describe worker: %v", err)
			continue
		}
		log.WithField("worker", w.ID()).Debugf("Worker holds %d cached partition(s) and %s of shuffle blocks", stats.CachedPartitions, humanize.Bytes(uint64(stats.ShuffleBytes)))
	}
}

// stopWorkers asks every Worker to shut down, and forgets them
func (c *coordinator) stopWorkers(ctx context.Context, workers []*remoteWorker) error {
	var lock sync.Mutex
	var merr *multierror.Error
	var g errgroup.Group
	for _, w := range workers {
		w := w
		g.Go(func() error {
			log.WithField("worker", w.ID()).Debug("Stopping worker...")
			if err := w.stop(ctx); err != nil {
				lock.Lock()
				merr = multierror.Append(merr, fmt.Errorf("Unable to stop worker %s: %w", w.ID(), err))
				lock.Unlock()
			}
			c.clusterServer.Deregister(w.ID())
			return nil
		})
	}
	g.Wait()
	return merr.ErrorOrNil()
}

func closeWorkers(workers []*remoteWorker) {
	for _, w := range workers {
		w.conn.Close()
	}
}
