package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sif/rdd/internal/executor"
	"github.com/go-sif/rdd/internal/pstore"
	"github.com/go-sif/rdd/internal/shuffle"
	"github.com/go-sif/rdd/internal/util"
	"github.com/go-sif/rdd/types"
	log "github.com/sirupsen/logrus"
)

// Runtime evaluates Tasks on a worker, against the worker's partition store and shuffle blocks
type Runtime struct {
	id     string
	store  *pstore.Store
	blocks *shuffle.Store
	reader *shuffle.Reader
}

// NewRuntime creates a Runtime for the worker with the given id. fetcher retrieves
// shuffle blocks held by other workers.
func NewRuntime(id string, store *pstore.Store, fetcher shuffle.Fetcher) *Runtime {
	blocks := shuffle.NewStore()
	return &Runtime{
		id:     id,
		store:  store,
		blocks: blocks,
		reader: shuffle.NewReader(id, blocks, fetcher),
	}
}

// ID returns the id of the worker this Runtime belongs to
func (r *Runtime) ID() string {
	return r.id
}

// Run computes the target partition of a Task, then writes it to a shuffle or computes an action partial
func (r *Runtime) Run(ctx context.Context, task *executor.Task) (*executor.TaskResult, error) {
	start := time.Now()
	ev, err := newEvaluation(r, task)
	if err != nil {
		return nil, err
	}
	records, err := ev.compute(ctx, task.Target, task.Partition)
	if err != nil {
		return nil, err
	}
	res := &executor.TaskResult{Worker: r.id}
	switch {
	case task.ShuffleWrite != nil:
		if err := r.writeShuffle(task, records); err != nil {
			return nil, err
		}
		res.Count = int64(len(records))
	case task.Action != nil:
		if err := r.act(ctx, task, records, res); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("Task (%s) has neither a shuffle output nor an action", task)
	}
	res.Duration = time.Since(start)
	log.WithFields(log.Fields{"worker": r.id, "job": task.JobID, "stage": task.StageID}).Debugf("Finished partition %d of Dataset %d in %s", task.Partition, task.Target, res.Duration)
	return res, nil
}

func (r *Runtime) writeShuffle(task *executor.Task, records []types.Record) error {
	spec := task.ShuffleWrite
	var p shuffle.Partitioner
	if spec.RoundRobin {
		p = &shuffle.RoundRobinPartitioner{N: spec.NumTargets, Mapper: task.Partition}
	} else {
		p = &shuffle.HashPartitioner{N: spec.NumTargets}
	}
	buckets := shuffle.Bucket(records, p)
	if spec.Distinct {
		for i, b := range buckets {
			buckets[i] = dedupe(b)
		}
	}
	return r.blocks.Write(spec.Shuffle, task.Partition, buckets)
}

func (r *Runtime) act(ctx context.Context, task *executor.Task, records []types.Record, res *executor.TaskResult) error {
	action := task.Action
	switch action.Kind {
	case executor.CollectAction:
		res.Records = records
		res.Count = int64(len(records))
	case executor.TakeAction:
		if action.Limit < len(records) {
			records = records[:action.Limit]
		}
		res.Records = records
		res.Count = int64(len(records))
	case executor.CountAction:
		res.Count = int64(len(records))
	case executor.FoldAction:
		spec, err := types.LookupFunc(action.Fold.Name)
		if err != nil {
			return err
		}
		fold, err := util.Folder(spec)
		if err != nil {
			return err
		}
		res.Count = int64(len(records))
		var acc types.Record
		switch {
		case action.HasZero:
			acc = action.Zero
		case len(records) == 0:
			return nil
		default:
			acc, records = records[0], records[1:]
		}
		for _, rec := range records {
			if acc, err = fold(action.Fold.Params, acc, rec); err != nil {
				return err
			}
		}
		res.Value, res.HasValue = acc, true
	case executor.SaveAction:
		if action.Sink == nil {
			return fmt.Errorf("Task (%s) has no sink", task)
		}
		sink, err := types.LookupSink(action.Sink.Kind)
		if err != nil {
			return err
		}
		if err := sink.Write(ctx, action.Sink, task.Partition, records); err != nil {
			return fmt.Errorf("Unable to write partition %d to %s: %w", task.Partition, action.Sink.Location, err)
		}
		res.Count = int64(len(records))
	default:
		return fmt.Errorf("Unknown action %q", action.Kind)
	}
	return nil
}

// ServeBlock returns a shuffle block written by this worker, for a peer
func (r *Runtime) ServeBlock(id shuffle.BlockID) ([]byte, bool) {
	return r.blocks.Block(id)
}

// Unpersist drops every cached partition of a Dataset
func (r *Runtime) Unpersist(id types.DatasetID) int {
	return r.store.EvictDataset(id)
}

// Reset drops every cached partition and shuffle block held by this worker
func (r *Runtime) Reset() {
	r.store.Purge()
	r.blocks.Clear()
}

// CachedPartitions returns the number of partitions in this worker's partition store
func (r *Runtime) CachedPartitions() int {
	return r.store.Len()
}

// ShuffleBytes returns the size of the shuffle blocks held by this worker
func (r *Runtime) ShuffleBytes() int64 {
	return r.blocks.Bytes()
}
