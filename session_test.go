package rdd

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/functions"
	"github.com/go-sif/rdd/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func init() {
	types.RegisterMap("rdd_test.failOnThree", types.IntType, types.IntType, func(p types.Params, in types.Record) (types.Record, error) {
		if in.(int64) == 3 {
			return nil, fmt.Errorf("three is not allowed")
		}
		return in, nil
	})
}

func ints(from int64, to int64) []types.Record {
	res := make([]types.Record, 0, to-from)
	for i := from; i < to; i++ {
		res = append(res, i)
	}
	return res
}

func sorted(records []types.Record) []int64 {
	res := make([]int64, len(records))
	for i, r := range records {
		res[i] = r.(int64)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

func newTestSession(t *testing.T, opts ...Option) *Session {
	s, err := NewLocalSession(append([]Option{WithWorkers(3), WithTaskSlots(2), WithLogLevel("WARN")}, opts...)...)
	require.NoError(t, err)
	return s
}

func TestScenarios(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestSession(t)
	defer s.Close()
	ctx := context.Background()

	d, err := s.Parallelize(types.IntType, ints(1, 6), 2)
	require.NoError(t, err)
	doubled, err := d.Map(functions.MultiplyInt(2))
	require.NoError(t, err)
	large, err := doubled.Filter(functions.GreaterThan(4))
	require.NoError(t, err)
	res, err := large.Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{6, 8, 10}, sorted(res))

	a, err := s.Parallelize(types.IntType, ints(1, 4), 2)
	require.NoError(t, err)
	b, err := s.Parallelize(types.IntType, ints(3, 6), 3)
	require.NoError(t, err)
	both, err := a.Intersection(b)
	require.NoError(t, err)
	res, err = both.Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{3}, sorted(res))

	d, err = s.Parallelize(types.IntType, ints(1, 5), 2)
	require.NoError(t, err)
	sum, err := d.Reduce(ctx, functions.SumInt())
	require.NoError(t, err)
	require.Equal(t, int64(10), sum)

	empty, err := s.Parallelize(types.IntType, nil, 2)
	require.NoError(t, err)
	sum, err = empty.Fold(ctx, int64(0), functions.SumInt())
	require.NoError(t, err)
	require.Equal(t, int64(0), sum)
	_, err = empty.Reduce(ctx, functions.SumInt())
	require.ErrorAs(t, err, &errors.EmptyDatasetError{})
}

func TestDeterminismAndCacheTransparency(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestSession(t)
	defer s.Close()
	ctx := context.Background()

	d, err := s.Parallelize(types.IntType, ints(0, 200), 5)
	require.NoError(t, err)
	sampled, err := d.Sample(false, 0.3, 42)
	require.NoError(t, err)
	mapped, err := sampled.Map(functions.AddInt(1))
	require.NoError(t, err)
	uncached, err := mapped.Collect(ctx)
	require.NoError(t, err)
	again, err := mapped.Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, uncached, again)

	_, err = sampled.Persist()
	require.NoError(t, err)
	cached, err := mapped.Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, uncached, cached)
	cached, err = mapped.Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, uncached, cached)

	require.NoError(t, sampled.Unpersist(ctx))
	res, err := mapped.Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, uncached, res)

	// a cache too small for any partition degrades to recomputation
	tiny := newTestSession(t, WithCacheMemory(1))
	defer tiny.Close()
	d, err = tiny.Parallelize(types.IntType, ints(0, 200), 5)
	require.NoError(t, err)
	_, err = d.Persist()
	require.NoError(t, err)
	doubled, err := d.Map(functions.MultiplyInt(2))
	require.NoError(t, err)
	count, err := doubled.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(200), count)
}

func TestMapUnionAndDistinct(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestSession(t)
	defer s.Close()
	ctx := context.Background()

	d, err := s.Parallelize(types.IntType, append(ints(0, 50), ints(25, 75)...), 4)
	require.NoError(t, err)
	original, err := d.Collect(ctx)
	require.NoError(t, err)
	mapped, err := d.Map(functions.MultiplyInt(3))
	require.NoError(t, err)
	res, err := mapped.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, res, len(original))
	for i, r := range original {
		require.Equal(t, r.(int64)*3, res[i])
	}

	other, err := s.Parallelize(types.IntType, ints(0, 10), 3)
	require.NoError(t, err)
	union, err := d.Union(other)
	require.NoError(t, err)
	require.Equal(t, 7, union.GetNumPartitions())
	count, err := union.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(110), count)

	distinct, err := union.Distinct()
	require.NoError(t, err)
	once, err := distinct.Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, sorted(ints(0, 75)), sorted(once))
	require.LessOrEqual(t, int64(len(once)), count)
	twice, err := distinct.Distinct(2)
	require.NoError(t, err)
	res, err = twice.Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, sorted(once), sorted(res))

	subtracted, err := d.Subtract(other)
	require.NoError(t, err)
	count, err = subtracted.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(90), count)
}

func TestRepartitionAndSample(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestSession(t)
	defer s.Close()
	ctx := context.Background()

	data := append(ints(0, 40), ints(0, 40)...)
	d, err := s.Parallelize(types.IntType, data, 3)
	require.NoError(t, err)
	repartitioned, err := d.Repartition(7)
	require.NoError(t, err)
	require.Equal(t, 7, repartitioned.GetNumPartitions())
	res, err := repartitioned.Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, sorted(data), sorted(res))
	_, err = d.Repartition(0)
	require.ErrorAs(t, err, &errors.PlanningError{})

	members := make(map[int64]bool)
	for _, r := range data {
		members[r.(int64)] = true
	}
	all, err := d.Sample(false, 1.0, 7)
	require.NoError(t, err)
	count, err := all.Count(ctx)
	require.NoError(t, err)
	require.InDelta(t, len(data), count, float64(len(data))*0.1)
	half, err := d.Sample(false, 0.5, 7)
	require.NoError(t, err)
	res, err = half.Collect(ctx)
	require.NoError(t, err)
	require.Less(t, len(res), len(data))
	for _, r := range res {
		require.True(t, members[r.(int64)])
	}
	doubled, err := d.Sample(true, 2.0, 7)
	require.NoError(t, err)
	res, err = doubled.Collect(ctx)
	require.NoError(t, err)
	for _, r := range res {
		require.True(t, members[r.(int64)])
	}
	_, err = d.Sample(false, 1.5)
	require.ErrorAs(t, err, &errors.PlanningError{})
}

func TestTakeAndFirst(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestSession(t)
	defer s.Close()
	ctx := context.Background()

	d, err := s.Parallelize(types.IntType, ints(0, 100), 10)
	require.NoError(t, err)
	res, err := d.Take(ctx, 25)
	require.NoError(t, err)
	require.Equal(t, ints(0, 25), res)
	res, err = d.Take(ctx, 1000)
	require.NoError(t, err)
	require.Len(t, res, 100)
	res, err = d.Take(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, res)

	// only the last partitions hold anything
	late, err := d.Filter(functions.GreaterThan(94))
	require.NoError(t, err)
	res, err = late.Take(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, ints(95, 98), res)

	first, err := d.First(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), first)
	none, err := d.Filter(functions.LessThan(0))
	require.NoError(t, err)
	_, err = none.First(ctx)
	require.ErrorAs(t, err, &errors.EmptyDatasetError{})
}

func TestAggregations(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestSession(t)
	defer s.Close()
	ctx := context.Background()

	d, err := s.Parallelize(types.IntType, ints(1, 101), 10)
	require.NoError(t, err)
	count, err := d.Aggregate(ctx, int64(0), functions.Count(), functions.SumInt())
	require.NoError(t, err)
	require.Equal(t, int64(100), count)
	for depth := 1; depth <= 3; depth++ {
		sum, err := d.TreeAggregate(ctx, 0.0, functions.SumIntsAsFloat(), functions.SumFloat(), depth)
		require.NoError(t, err)
		require.Equal(t, 5050.0, sum)
	}
	_, err = d.TreeAggregate(ctx, 0.0, functions.SumIntsAsFloat(), functions.SumFloat(), 0)
	require.ErrorAs(t, err, &errors.PlanningError{})
	max, err := d.Reduce(ctx, functions.MaxInt())
	require.NoError(t, err)
	require.Equal(t, int64(100), max)

	// zero values of the wrong type, and combiners over the wrong type, fail before running
	_, err = d.Aggregate(ctx, "zero", functions.Count(), functions.SumInt())
	require.ErrorAs(t, err, &errors.TypeMismatchError{})
	_, err = d.Reduce(ctx, functions.SumFloat())
	require.ErrorAs(t, err, &errors.TypeMismatchError{})
	_, err = d.Fold(ctx, 0.0, functions.SumInt())
	require.ErrorAs(t, err, &errors.TypeMismatchError{})
	jobs, _ := s.Stats().GetNumJobs()
	require.Equal(t, int64(5), jobs)
}

func TestPartitionFunctions(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestSession(t)
	defer s.Close()
	ctx := context.Background()

	d, err := s.Parallelize(types.StringType, []types.Record{"b a", "c", "a b"}, 2)
	require.NoError(t, err)
	words, err := d.MapPartitions(functions.Words())
	require.NoError(t, err)
	sortedWords, err := words.MapPartitions(functions.Sort(false))
	require.NoError(t, err)
	res, err := sortedWords.Collect(ctx)
	require.NoError(t, err)
	// the first slice holds "b a", the second "c" and "a b"
	require.Equal(t, []types.Record{"a", "b", "a", "b", "c"}, res)

	tagged, err := d.MapPartitionsWithIndex(functions.TagPartition())
	require.NoError(t, err)
	res, err = tagged.Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, []types.Record{"0:b a", "1:c", "1:a b"}, res)
}

func TestPlanningErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestSession(t)
	defer s.Close()
	ctx := context.Background()

	d, err := s.Parallelize(types.IntType, ints(0, 10), 2)
	require.NoError(t, err)
	_, err = d.Map(functions.Upper())
	require.ErrorAs(t, err, &errors.TypeMismatchError{})
	_, err = d.Map(types.Fn("rdd_test.missing"))
	require.ErrorAs(t, err, &errors.UnknownFunctionError{})
	_, err = d.Map(functions.GreaterThan(1))
	require.ErrorAs(t, err, &errors.PlanningError{})
	strs, err := s.Parallelize(types.StringType, []types.Record{"a"}, 1)
	require.NoError(t, err)
	_, err = d.Union(strs)
	require.ErrorAs(t, err, &errors.TypeMismatchError{})
	_, err = s.Parallelize(types.IntType, []types.Record{"a"}, 1)
	require.ErrorAs(t, err, &errors.TypeMismatchError{})

	// released Datasets cannot be used, but their descendants can
	doubled, err := d.Map(functions.MultiplyInt(2))
	require.NoError(t, err)
	require.NoError(t, d.Release())
	_, err = d.Map(functions.AddInt(1))
	require.ErrorAs(t, err, &errors.ReleasedDatasetError{})
	_, err = d.Count(ctx)
	require.ErrorAs(t, err, &errors.ReleasedDatasetError{})
	count, err := doubled.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(10), count)

	other := newTestSession(t)
	defer other.Close()
	foreign, err := other.Parallelize(types.IntType, ints(0, 1), 1)
	require.NoError(t, err)
	_, err = doubled.Union(foreign)
	require.ErrorAs(t, err, &errors.PlanningError{})
}

func TestFailedJobs(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestSession(t)
	defer s.Close()
	d, err := s.Parallelize(types.IntType, ints(0, 10), 2)
	require.NoError(t, err)
	bad, err := d.Map(types.Fn("rdd_test.failOnThree"))
	require.NoError(t, err)
	_, err = bad.Collect(context.Background())
	var jobErr errors.JobFailedError
	require.ErrorAs(t, err, &jobErr)
	require.Len(t, jobErr.Lineage, 2)
	require.Contains(t, err.Error(), "three is not allowed")
	_, failed := s.Stats().GetNumJobs()
	require.Equal(t, int64(1), failed)
}

// killer kills a worker as soon as the first stage of a job completes
type killer struct {
	once    sync.Once
	session *Session
	worker  string
}

func (k *killer) JobStarted(jobID string, numStages int)                    {}
func (k *killer) StageSubmitted(jobID string, stageID int, numTasks int)    {}
func (k *killer) JobEnded(jobID string, err error)                          {}
func (k *killer) TaskEnded(string, int, int, string, time.Duration, error) {}
func (k *killer) StageCompleted(jobID string, stageID int, err error) {
	if stageID == 0 && err == nil {
		k.once.Do(func() {
			if err := k.session.KillWorker(k.worker); err != nil {
				panic(err)
			}
		})
	}
}

func TestFaultTransparency(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	pipeline := func(s *Session) []types.Record {
		d, err := s.Parallelize(types.IntType, ints(0, 300), 6)
		require.NoError(t, err)
		mapped, err := d.Map(functions.ModInt(50))
		require.NoError(t, err)
		distinct, err := mapped.Distinct(4)
		require.NoError(t, err)
		shifted, err := distinct.Map(functions.AddInt(1))
		require.NoError(t, err)
		res, err := shifted.Collect(ctx)
		require.NoError(t, err)
		return res
	}

	healthy := newTestSession(t)
	expected := pipeline(healthy)
	require.NoError(t, healthy.Close())

	k := &killer{worker: "local-1"}
	s := newTestSession(t, WithListener(k))
	k.session = s
	defer s.Close()
	require.Equal(t, sorted(expected), sorted(pipeline(s)))
	require.Len(t, expected, 50)
}

// mapperTracker remembers which worker last wrote the output of the first mapper
type mapperTracker struct {
	lock   sync.Mutex
	worker string
}

func (m *mapperTracker) JobStarted(jobID string, numStages int)                 {}
func (m *mapperTracker) StageSubmitted(jobID string, stageID int, numTasks int) {}
func (m *mapperTracker) StageCompleted(jobID string, stageID int, err error)    {}
func (m *mapperTracker) JobEnded(jobID string, err error)                       {}
func (m *mapperTracker) TaskEnded(jobID string, stageID int, partition int, worker string, duration time.Duration, err error) {
	if stageID == 0 && partition == 0 && err == nil {
		m.lock.Lock()
		m.worker = worker
		m.lock.Unlock()
	}
}

func (m *mapperTracker) holder() string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.worker
}

func TestRecoveryIsBoundedPerJob(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	m := &mapperTracker{}
	s := newTestSession(t, WithWorkers(6), WithHeartbeat(time.Hour, 2*time.Hour), WithListener(m))
	defer s.Close()
	d, err := s.Parallelize(types.IntType, ints(0, 100), 1)
	require.NoError(t, err)
	mapped, err := d.Map(functions.ModInt(10))
	require.NoError(t, err)
	distinct, err := mapped.Distinct(2)
	require.NoError(t, err)
	res, err := distinct.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, res, 10)

	// every job loses the shuffle output once, more times in total than a single job may recover it
	for i := 0; i <= defaultConfig().MaxRecoveries; i++ {
		holder := m.holder()
		require.NotEmpty(t, holder)
		require.NoError(t, s.KillWorker(holder))
		res, err := distinct.Collect(ctx)
		require.NoError(t, err, "job %d", i)
		require.Len(t, res, 10)
		require.NotEqual(t, holder, m.holder())
	}
}

func TestSaveAsTextFile(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestSession(t)
	defer s.Close()
	ctx := context.Background()
	dir, err := ioutil.TempDir("", "rdd-save")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	d, err := s.Parallelize(types.IntType, ints(0, 20), 3)
	require.NoError(t, err)
	out := filepath.Join(dir, "out")
	require.NoError(t, d.SaveAsTextFile(ctx, out))
	_, err = os.Stat(filepath.Join(out, "_SUCCESS"))
	require.NoError(t, err)

	lines, err := s.TextFile(filepath.Join(out, "part-*"))
	require.NoError(t, err)
	require.Equal(t, 3, lines.GetNumPartitions())
	res, err := lines.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, res, 20)
	require.Equal(t, "0", res[0])

	_, err = s.TextFile(filepath.Join(dir, "missing-*"))
	require.Error(t, err)
}

func TestJSONLines(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestSession(t)
	defer s.Close()
	dir, err := ioutil.TempDir("", "rdd-jsonl")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "a.jsonl"), []byte("{\"n\": 1}\n{\"n\": 2}\n"), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "b.jsonl"), []byte("{\"n\": 3}\n"), 0644))

	d, err := s.JSONLines(filepath.Join(dir, "*.jsonl"), "n", types.IntType)
	require.NoError(t, err)
	sum, err := d.Reduce(context.Background(), functions.SumInt())
	require.NoError(t, err)
	require.Equal(t, int64(6), sum)
}

func TestSessionLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)
	closed := false
	s := newTestSession(t, WithCloseHook(func() error {
		closed = true
		return nil
	}))
	require.Equal(t, SessionOpen, s.State())
	require.Len(t, s.Workers(), 3)

	d, err := s.Parallelize(types.IntType, ints(0, 10), 0)
	require.NoError(t, err)
	require.Equal(t, 6, d.GetNumPartitions())
	repartitioned, err := d.Repartition(2)
	require.NoError(t, err)
	require.Contains(t, repartitioned.ToDebugString(), "repartition(2)")
	_, err = repartitioned.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, SessionActive, s.State())

	require.NoError(t, s.Close())
	require.True(t, closed)
	require.Equal(t, SessionClosed, s.State())
	require.NoError(t, s.Close())
	_, err = d.Count(context.Background())
	require.ErrorAs(t, err, &errors.SessionClosedError{})
	_, err = s.Parallelize(types.IntType, ints(0, 10), 2)
	require.ErrorAs(t, err, &errors.SessionClosedError{})
	require.Error(t, s.KillWorker("remote"))
}

func TestCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestSession(t)
	defer s.Close()
	d, err := s.Parallelize(types.IntType, ints(0, 10), 2)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Collect(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "rdd-conf")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "rdd.yaml"), []byte("task_slots: 3\nheartbeat_interval: 2s\n"), 0644))
	require.NoError(t, os.Setenv("RDD_WORKERS", "5"))
	defer os.Unsetenv("RDD_WORKERS")

	conf, err := LoadConfig(dir)
	require.NoError(t, err)
	require.Equal(t, 5, conf.Workers)
	require.Equal(t, 3, conf.TaskSlots)
	require.Equal(t, 2*time.Second, conf.HeartbeatInterval)
	require.Equal(t, 4, conf.MaxTaskAttempts)
	require.Equal(t, "INFO", conf.LogLevel)

	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "rdd.yaml"), []byte("log_level: loud\n"), 0644))
	_, err = LoadConfig(dir)
	require.Error(t, err)
}
