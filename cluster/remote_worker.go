package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/internal/executor"
	"github.com/go-sif/rdd/internal/partition"
	"github.com/go-sif/rdd/internal/rpc"
	"github.com/go-sif/rdd/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// remoteWorker is an executor.Worker reached over gRPC
type remoteWorker struct {
	desc       rpc.WorkerDescriptor
	conn       *grpc.ClientConn
	client     *rpc.WorkerServiceClient
	timeout    time.Duration
	serializer *partition.LZ4PartitionSerializer
}

func dialWorker(ctx context.Context, desc rpc.WorkerDescriptor, timeout time.Duration) (*remoteWorker, error) {
	conn, err := rpc.Dial(ctx, fmt.Sprintf("%s:%d", desc.Host, desc.Port))
	if err != nil {
		return nil, err
	}
	return &remoteWorker{
		desc:       desc,
		conn:       conn,
		client:     rpc.NewWorkerServiceClient(conn),
		timeout:    timeout,
		serializer: partition.NewLZ4PartitionSerializer(),
	}, nil
}

// ID returns the id of this worker
func (w *remoteWorker) ID() string {
	return w.desc.ID
}

// Address returns the address peers fetch shuffle blocks from
func (w *remoteWorker) Address() string {
	return fmt.Sprintf("%s:%d", w.desc.Host, w.desc.Port)
}

// Slots returns the number of tasks this worker runs concurrently
func (w *remoteWorker) Slots() int {
	return w.desc.Slots
}

// transportError distinguishes failures to reach this worker from other RPC errors
func (w *remoteWorker) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.Aborted:
		return errors.WorkerUnreachableError{Worker: w.desc.ID, Err: err}
	default:
		return fmt.Errorf("Worker %s failed: %w", w.desc.ID, err)
	}
}

// RunTask runs a task on this worker, for as long as ctx allows
func (w *remoteWorker) RunTask(ctx context.Context, task *executor.Task) (*executor.TaskResult, error) {
	resp, err := w.client.RunTask(ctx, &rpc.RunTaskRequest{Task: task})
	if err != nil {
		return nil, w.transportError(ctx, err)
	}
	if resp.Err != nil {
		return nil, resp.Err.Decode()
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("Worker %s returned no result for task (%s)", w.desc.ID, task)
	}
	if len(resp.Records) > 0 {
		if resp.Result.Records, err = w.serializer.Decode(resp.Records); err != nil {
			return nil, err
		}
	}
	return resp.Result, nil
}

// Heartbeat fails iff this worker cannot be reached
func (w *remoteWorker) Heartbeat(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if _, err := w.client.Heartbeat(ctx); err != nil {
		return errors.WorkerUnreachableError{Worker: w.desc.ID, Err: err}
	}
	return nil
}

// Unpersist drops every cached partition of a Dataset from this worker
func (w *remoteWorker) Unpersist(ctx context.Context, id types.DatasetID) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if _, err := w.client.Unpersist(ctx, &rpc.UnpersistRequest{Dataset: id}); err != nil {
		return w.transportError(ctx, err)
	}
	return nil
}

// Statistics describes the data held by this worker
func (w *remoteWorker) Statistics(ctx context.Context) (*rpc.WorkerStatistics, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	stats, err := w.client.ProvideStatistics(ctx)
	if err != nil {
		return nil, w.transportError(ctx, err)
	}
	return stats, nil
}

// stop asks this worker to shut down, then closes the connection to it
func (w *remoteWorker) stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	err := w.client.Stop(ctx)
	if closeErr := w.conn.Close(); err == nil {
		err = closeErr
	}
	return err
}
