package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/internal/executor"
	"github.com/go-sif/rdd/internal/lineage"
	"github.com/go-sif/rdd/internal/pstore"
	"github.com/go-sif/rdd/internal/recovery"
	"github.com/go-sif/rdd/internal/shuffle"
	"github.com/go-sif/rdd/internal/worker"
	"github.com/go-sif/rdd/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type seqSource struct{}

// Read produces partition i as [i*size, (i+1)*size), each value repeated "repeat" times
func (seqSource) Read(ctx context.Context, desc *types.SourceDescriptor, index int) ([]types.Record, error) {
	size, _ := desc.Options.Int("size")
	repeat, _ := desc.Options.Int("repeat")
	var res []types.Record
	for r := int64(0); r < repeat; r++ {
		for i := int64(index) * size; i < int64(index+1)*size; i++ {
			res = append(res, i)
		}
	}
	return res, nil
}

func init() {
	types.RegisterSource("scheduler_test", seqSource{})
	types.RegisterMap("scheduler_test.inc", types.IntType, types.IntType, func(p types.Params, in types.Record) (types.Record, error) {
		return in.(int64) + 1, nil
	})
	types.RegisterMap("scheduler_test.fail", types.IntType, types.IntType, func(p types.Params, in types.Record) (types.Record, error) {
		if in.(int64) == 3 {
			return nil, fmt.Errorf("three is not allowed")
		}
		return in, nil
	})
	types.RegisterFilter("scheduler_test.odd", types.IntType, func(p types.Params, in types.Record) (bool, error) {
		return in.(int64)%2 == 1, nil
	})
}

type env struct {
	graph     *lineage.Graph
	network   *worker.Network
	workers   []*worker.Local
	health    *recovery.Health
	tracker   *shuffle.Tracker
	scheduler *Scheduler
	events    *recorder
}

func newEnv(t *testing.T, numWorkers int) *env {
	e := &env{
		graph:   lineage.NewGraph(),
		network: worker.NewNetwork(),
		health:  recovery.NewHealth(&recovery.HealthConfig{}),
		tracker: shuffle.NewTracker(),
		events:  &recorder{},
	}
	pool := executor.NewPool(&executor.PoolConfig{MaxAttempts: 3}, e.health)
	for i := 0; i < numWorkers; i++ {
		l, err := e.network.NewLocal(fmt.Sprintf("w%d", i), 2, &pstore.Config{MemoryBudget: 1 << 20})
		require.NoError(t, err)
		e.workers = append(e.workers, l)
		pool.AddWorker(l)
	}
	controller := recovery.NewController(e.health, e.tracker, func(ctx context.Context, id string) error {
		w, ok := pool.Worker(id)
		if !ok {
			return errors.WorkerUnreachableError{Worker: id}
		}
		return w.Heartbeat(ctx)
	}, 3)
	e.scheduler = New(&Config{}, e.graph, pool, e.tracker, controller)
	e.scheduler.AddListener(e.events)
	return e
}

func (e *env) source(partitions int, size int64, repeat int64) *lineage.Node {
	return e.build(types.Transformation{Kind: types.SourceKind, Source: &types.SourceDescriptor{
		Kind:          "scheduler_test",
		NumPartitions: partitions,
		Elem:          types.IntType,
		Options:       types.Params{"size": size, "repeat": repeat},
	}})
}

func (e *env) build(t types.Transformation, parents ...*lineage.Node) *lineage.Node {
	ids := make([]types.DatasetID, len(parents))
	for i, p := range parents {
		ids[i] = p.ID
	}
	n, err := e.graph.Build(t, ids...)
	if err != nil {
		panic(err)
	}
	return n
}

func (e *env) collect(t *testing.T, target *lineage.Node) []int64 {
	results, err := e.scheduler.RunJob(context.Background(), &Job{Target: target.ID, Action: &executor.ActionSpec{Kind: executor.CollectAction}})
	require.NoError(t, err)
	var res []int64
	for _, r := range results {
		for _, rec := range r.Records {
			res = append(res, rec.(int64))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

type recorder struct {
	lock           sync.Mutex
	submitted      map[int]int // stage id -> tasks, for the last job
	onStageDone    func(stageID int)
	jobs, failures int
}

func (r *recorder) JobStarted(jobID string, numStages int) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.jobs++
	r.submitted = make(map[int]int)
}

func (r *recorder) StageSubmitted(jobID string, stageID int, numTasks int) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.submitted[stageID] += numTasks
}

func (r *recorder) TaskEnded(jobID string, stageID int, partition int, worker string, duration time.Duration, err error) {
}

func (r *recorder) StageCompleted(jobID string, stageID int, err error) {
	r.lock.Lock()
	hook := r.onStageDone
	r.lock.Unlock()
	if hook != nil && err == nil {
		hook(stageID)
	}
}

func (r *recorder) JobEnded(jobID string, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if err != nil {
		r.failures++
	}
}

func TestPlanCutsStagesAtWideDependencies(t *testing.T) {
	e := newEnv(t, 1)
	src := e.source(2, 3, 1)
	distinct := e.build(types.Transformation{Kind: types.DistinctKind}, src)
	inc := e.build(types.Transformation{Kind: types.MapKind, Fn: types.Fn("scheduler_test.inc")}, distinct)
	odd := e.build(types.Transformation{Kind: types.FilterKind, Fn: types.Fn("scheduler_test.odd")}, distinct)
	union := e.build(types.Transformation{Kind: types.UnionKind}, inc, odd)

	stages, err := Plan(e.graph, union.ID)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	require.True(t, stages[0].IsShuffleMap())
	require.Equal(t, src.ID, stages[0].Target.ID)
	require.Equal(t, []types.ShuffleID{{Dataset: distinct.ID, Parent: 0}}, stages[1].Inputs)
	require.Equal(t, []*Stage{stages[0]}, stages[1].Parents)
	require.Equal(t, 4, stages[1].NumTasks)

	inter := e.build(types.Transformation{Kind: types.IntersectionKind}, distinct, src)
	stages, err = Plan(e.graph, inter.ID)
	require.NoError(t, err)
	require.Len(t, stages, 4)
	for i, st := range stages {
		require.Equal(t, i, st.ID)
		for _, p := range st.Parents {
			require.Less(t, p.ID, st.ID)
		}
	}
	require.False(t, stages[3].IsShuffleMap())
	require.Len(t, stages[3].Parents, 2)
}

func TestPlanRejectsReleasedDatasets(t *testing.T) {
	e := newEnv(t, 1)
	src := e.source(1, 1, 1)
	require.NoError(t, e.graph.Release(src.ID))
	_, err := Plan(e.graph, src.ID)
	require.ErrorAs(t, err, &errors.ReleasedDatasetError{})
}

func TestRunJob(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEnv(t, 3)
	src := e.source(3, 4, 2)
	distinct := e.build(types.Transformation{Kind: types.DistinctKind, NumPartitions: 2}, src)
	require.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, e.collect(t, distinct))

	// shuffle outputs are reused by later jobs
	inc := e.build(types.Transformation{Kind: types.MapKind, Fn: types.Fn("scheduler_test.inc")}, distinct)
	require.Len(t, e.collect(t, inc), 12)
	require.Equal(t, map[int]int{1: 2}, e.events.submitted)

	results, err := e.scheduler.RunJob(context.Background(), &Job{Target: inc.ID, Action: &executor.ActionSpec{Kind: executor.CountAction}, Partitions: []int{1}})
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, err = e.scheduler.RunJob(context.Background(), &Job{Target: inc.ID, Action: &executor.ActionSpec{Kind: executor.CountAction}, Partitions: []int{5}})
	require.ErrorAs(t, err, &errors.PlanningError{})
}

func TestFailedJobsReportLineage(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEnv(t, 2)
	src := e.source(2, 3, 1)
	bad := e.build(types.Transformation{Kind: types.MapKind, Fn: types.Fn("scheduler_test.fail")}, src)
	_, err := e.scheduler.RunJob(context.Background(), &Job{Target: bad.ID, Action: &executor.ActionSpec{Kind: executor.CollectAction}})

	var jobErr errors.JobFailedError
	require.ErrorAs(t, err, &jobErr)
	require.Len(t, jobErr.Lineage, 2)
	var taskErr errors.TaskError
	require.ErrorAs(t, err, &taskErr)
	require.Equal(t, 1, taskErr.Partition)
	require.Contains(t, err.Error(), "three is not allowed")
	require.Equal(t, 1, e.events.failures)
}

func TestLostWorkersAreRecomputedFromLineage(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEnv(t, 3)
	src := e.source(6, 5, 1)
	repart := e.build(types.Transformation{Kind: types.RepartitionKind, NumPartitions: 3}, src)
	inc := e.build(types.Transformation{Kind: types.MapKind, Fn: types.Fn("scheduler_test.inc")}, repart)

	var once sync.Once
	e.events.lock.Lock()
	e.events.onStageDone = func(stageID int) {
		if stageID == 0 {
			// every map output is written, then a worker holding some of them dies
			once.Do(e.workers[1].Kill)
		}
	}
	e.events.lock.Unlock()

	res := e.collect(t, inc)
	require.Len(t, res, 30)
	for i, v := range res {
		require.Equal(t, int64(i+1), v)
	}
	for _, loc := range e.tracker.Locations(types.ShuffleID{Dataset: repart.ID, Parent: 0}) {
		require.NotEqual(t, "w1", loc)
	}
}

func TestCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEnv(t, 1)
	src := e.source(4, 10, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.scheduler.RunJob(ctx, &Job{Target: src.ID, Action: &executor.ActionSpec{Kind: executor.CountAction}})
	require.ErrorIs(t, err, context.Canceled)
}
