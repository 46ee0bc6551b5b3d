package testing

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-sif/rdd/cluster"
	"github.com/hashicorp/go-multierror"
)

func freePort() (int, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port, nil
}

// LocalRunJob runs a Job on a localhost test cluster with a certain number of workers. Every
// node listens on a free port, and is stopped once the Job is complete.
func LocalRunJob(ctx context.Context, job cluster.Job, opts *cluster.NodeOptions, numWorkers int) (err error) {
	// configure and start coordinator
	port, err := freePort()
	if err != nil {
		return err
	}
	opts.Host = "127.0.0.1"
	opts.Port = port
	opts.CoordinatorPort = opts.Port
	opts.CoordinatorHost = "127.0.0.1"
	opts.NumWorkers = numWorkers
	if opts.WorkerJoinTimeout == 0 {
		opts.WorkerJoinTimeout = 10 * time.Second
	}
	if opts.RPCTimeout == 0 {
		opts.RPCTimeout = 5 * time.Second
	}

	coordinator, err := cluster.CreateNodeInRole(cluster.Coordinator, opts)
	if err != nil {
		return err
	}
	var wg sync.WaitGroup
	var lock sync.Mutex
	var merr *multierror.Error
	start := func(node cluster.Node, name string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := node.Start(); err != nil {
				lock.Lock()
				merr = multierror.Append(merr, fmt.Errorf("%s failed: %w", name, err))
				lock.Unlock()
			}
		}()
	}
	start(coordinator, "coordinator")
	defer func() {
		coordinator.GracefulStop()
		wg.Wait()
		if err == nil {
			err = merr.ErrorOrNil()
		}
	}()

	// start workers
	for i := 0; i < numWorkers; i++ {
		wopts := cluster.CloneNodeOptions(opts)
		if wopts.Port, err = freePort(); err != nil {
			return err
		}
		worker, err := cluster.CreateNodeInRole(cluster.Worker, wopts)
		if err != nil {
			return err
		}
		start(worker, fmt.Sprintf("worker %d", i))
		defer worker.GracefulStop()
	}
	return coordinator.Run(ctx, job)
}
