package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sif/rdd/internal/lineage"
	"github.com/go-sif/rdd/types"
)

// ActionKind identifies the partial result an action task computes
type ActionKind string

const (
	// CollectAction returns every record
	CollectAction ActionKind = "collect"
	// TakeAction returns at most Limit records
	TakeAction ActionKind = "take"
	// CountAction returns the number of records
	CountAction ActionKind = "count"
	// FoldAction folds records into a single value (fold, reduce, aggregate)
	FoldAction ActionKind = "fold"
	// SaveAction writes records to a Sink
	SaveAction ActionKind = "save"
)

// ActionSpec describes the partial result computed by each task of a result stage
type ActionSpec struct {
	Kind    ActionKind
	Limit   int                   // take
	Zero    types.Record          // fold, when HasZero
	HasZero bool                  // fold without a zero value is a reduce
	Fold    types.FuncRef         // fold: a CombineFunc, or a SeqFunc for aggregate
	Sink    *types.SinkDescriptor // save
}

// ShuffleWriteSpec describes the shuffle output of each task of a shuffle map stage
type ShuffleWriteSpec struct {
	Shuffle    types.ShuffleID
	NumTargets int
	RoundRobin bool // round robin partitioning instead of hashing
	Distinct   bool // drop duplicates within each block before writing
}

// ShuffleInput lists the workers holding each mapper's output for a shuffle read by a task
type ShuffleInput struct {
	Shuffle   types.ShuffleID
	Locations []string
}

// Task computes a single partition of a Dataset, then either writes shuffle blocks or computes an action partial
type Task struct {
	JobID        string
	StageID      int
	Attempt      int
	Partition    int
	Target       types.DatasetID
	Lineage      []*lineage.Node   // the target and every ancestor
	Persisted    []types.DatasetID // ancestors whose partitions should be cached
	ShuffleWrite *ShuffleWriteSpec
	Action       *ActionSpec
	Inputs       []ShuffleInput
	Peers        map[string]string // worker id -> address
}

// String returns a textual representation of this Task
func (t *Task) String() string {
	return fmt.Sprintf("job %s stage %d partition %d attempt %d", t.JobID, t.StageID, t.Partition, t.Attempt)
}

// Locations returns the worker holding each mapper's output for a shuffle read by this Task
func (t *Task) Locations(id types.ShuffleID) ([]string, bool) {
	for _, in := range t.Inputs {
		if in.Shuffle == id {
			return in.Locations, true
		}
	}
	return nil, false
}

// TaskResult is the outcome of a successful Task
type TaskResult struct {
	Worker   string
	Records  []types.Record // collect, take
	Count    int64          // count, save
	Value    types.Record   // fold
	HasValue bool           // fold: false iff the partition was empty and no zero value was given
	Duration time.Duration
}

// Worker runs Tasks. Implementations may be in-process or remote.
type Worker interface {
	ID() string
	Address() string                                              // Address is where peers fetch shuffle blocks from, empty for in-process Workers
	Slots() int                                                   // Slots returns the number of Tasks this Worker runs concurrently
	RunTask(ctx context.Context, task *Task) (*TaskResult, error) // RunTask runs a Task to completion
	Heartbeat(ctx context.Context) error                          // Heartbeat returns an error iff the Worker is unreachable
	Unpersist(ctx context.Context, id types.DatasetID) error      // Unpersist drops every cached partition of a Dataset
}
