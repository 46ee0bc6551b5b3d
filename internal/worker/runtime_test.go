package worker

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/internal/executor"
	"github.com/go-sif/rdd/internal/lineage"
	"github.com/go-sif/rdd/internal/pstore"
	"github.com/go-sif/rdd/types"
	"github.com/stretchr/testify/require"
)

// rangeSource produces partition i as the integers [i*size, (i+1)*size), each repeated "repeat" times
type rangeSource struct {
	reads int32
}

func (s *rangeSource) Read(ctx context.Context, desc *types.SourceDescriptor, index int) ([]types.Record, error) {
	atomic.AddInt32(&s.reads, 1)
	size, err := desc.Options.Int("size")
	if err != nil {
		return nil, err
	}
	repeat, err := desc.Options.Int("repeat")
	if err != nil {
		repeat = 1
	}
	var res []types.Record
	for r := int64(0); r < repeat; r++ {
		for i := int64(index) * size; i < int64(index+1)*size; i++ {
			res = append(res, i)
		}
	}
	return res, nil
}

var testSource = &rangeSource{}

func init() {
	types.RegisterSource("worker_test", testSource)
	types.RegisterMap("worker_test.double", types.IntType, types.IntType, func(p types.Params, in types.Record) (types.Record, error) {
		return in.(int64) * 2, nil
	})
	types.RegisterMap("worker_test.mod", types.IntType, types.IntType, func(p types.Params, in types.Record) (types.Record, error) {
		m, err := p.Int("m")
		if err != nil {
			return nil, err
		}
		return in.(int64) % m, nil
	})
	types.RegisterMap("worker_test.string", types.IntType, types.IntType, func(p types.Params, in types.Record) (types.Record, error) {
		return fmt.Sprint(in), nil
	})
	types.RegisterFilter("worker_test.even", types.IntType, func(p types.Params, in types.Record) (bool, error) {
		return in.(int64)%2 == 0, nil
	})
	types.RegisterCombine("worker_test.sum", types.IntType, func(p types.Params, a types.Record, b types.Record) (types.Record, error) {
		return a.(int64) + b.(int64), nil
	})
}

func source(g *lineage.Graph, partitions int, size int64, repeat int64) *lineage.Node {
	n, err := g.Build(types.Transformation{Kind: types.SourceKind, Source: &types.SourceDescriptor{
		Kind:          "worker_test",
		NumPartitions: partitions,
		Elem:          types.IntType,
		Options:       types.Params{"size": size, "repeat": repeat},
	}})
	if err != nil {
		panic(err)
	}
	return n
}

func build(g *lineage.Graph, t types.Transformation, parents ...*lineage.Node) *lineage.Node {
	ids := make([]types.DatasetID, len(parents))
	for i, p := range parents {
		ids[i] = p.ID
	}
	n, err := g.Build(t, ids...)
	if err != nil {
		panic(err)
	}
	return n
}

func taskFor(g *lineage.Graph, target *lineage.Node, partition int) *executor.Task {
	nodes, persisted, err := g.Snapshot(target.ID)
	if err != nil {
		panic(err)
	}
	return &executor.Task{JobID: "test", Target: target.ID, Partition: partition, Lineage: nodes, Persisted: persisted}
}

func collect(action executor.ActionKind) *executor.ActionSpec {
	return &executor.ActionSpec{Kind: action}
}

func ints(records []types.Record) []int64 {
	res := make([]int64, len(records))
	for i, r := range records {
		res[i] = r.(int64)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

func newLocal(t *testing.T, n *Network, id string) *Local {
	l, err := n.NewLocal(id, 2, &pstore.Config{MemoryBudget: 1 << 20})
	require.NoError(t, err)
	return l
}

func TestNarrowPipeline(t *testing.T) {
	g := lineage.NewGraph()
	src := source(g, 2, 5, 1)
	doubled := build(g, types.Transformation{Kind: types.MapKind, Fn: types.Fn("worker_test.double")}, src)
	mod := build(g, types.Transformation{Kind: types.MapKind, Fn: types.Fn("worker_test.mod", types.Params{"m": 4})}, doubled)
	l := newLocal(t, NewNetwork(), "w1")

	task := taskFor(g, mod, 1)
	task.Action = collect(executor.CollectAction)
	res, err := l.RunTask(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, []types.Record{int64(2), int64(0), int64(2), int64(0), int64(2)}, res.Records)

	task.Action = &executor.ActionSpec{Kind: executor.FoldAction, Fold: types.Fn("worker_test.sum")}
	res, err = l.RunTask(context.Background(), task)
	require.NoError(t, err)
	require.True(t, res.HasValue)
	require.Equal(t, int64(6), res.Value)
	require.Equal(t, int64(5), res.Count)

	task.Action = &executor.ActionSpec{Kind: executor.FoldAction, Fold: types.Fn("worker_test.sum"), Zero: int64(0), HasZero: true}
	res, err = l.RunTask(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, int64(6), res.Value)
	require.Equal(t, int64(5), res.Count)

	task.Action = &executor.ActionSpec{Kind: executor.TakeAction, Limit: 2}
	res, err = l.RunTask(context.Background(), task)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
}

func TestUnionMapsPartitionsOntoParents(t *testing.T) {
	g := lineage.NewGraph()
	a := source(g, 2, 2, 1)
	b := source(g, 1, 3, 1)
	u := build(g, types.Transformation{Kind: types.UnionKind}, a, b)
	require.Equal(t, 3, u.NumPartitions)
	l := newLocal(t, NewNetwork(), "w1")

	task := taskFor(g, u, 2)
	task.Action = collect(executor.CollectAction)
	res, err := l.RunTask(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1, 2}, ints(res.Records))
}

func TestPersistedPartitionsAreComputedOnce(t *testing.T) {
	g := lineage.NewGraph()
	src := source(g, 1, 10, 1)
	even := build(g, types.Transformation{Kind: types.FilterKind, Fn: types.Fn("worker_test.even")}, src)
	require.NoError(t, g.SetPersisted(src.ID, true))
	l := newLocal(t, NewNetwork(), "w1")

	before := atomic.LoadInt32(&testSource.reads)
	for i := 0; i < 3; i++ {
		task := taskFor(g, even, 0)
		task.Action = collect(executor.CountAction)
		res, err := l.RunTask(context.Background(), task)
		require.NoError(t, err)
		require.Equal(t, int64(5), res.Count)
	}
	require.Equal(t, before+1, atomic.LoadInt32(&testSource.reads))
	require.Equal(t, 1, l.Runtime().CachedPartitions())

	require.NoError(t, l.Unpersist(context.Background(), src.ID))
	require.Equal(t, 0, l.Runtime().CachedPartitions())
}

func TestTypeMismatchesAreReported(t *testing.T) {
	g := lineage.NewGraph()
	src := source(g, 1, 3, 1)
	bad := build(g, types.Transformation{Kind: types.MapKind, Fn: types.Fn("worker_test.string")}, src)
	l := newLocal(t, NewNetwork(), "w1")

	task := taskFor(g, bad, 0)
	task.Action = collect(executor.CollectAction)
	_, err := l.RunTask(context.Background(), task)
	require.ErrorAs(t, err, &errors.TypeMismatchError{})
}

// shuffleTo runs the map side of a shuffle for every partition of parent, alternating workers
func shuffleTo(t *testing.T, g *lineage.Graph, wide *lineage.Node, parent int, workers []*Local) executor.ShuffleInput {
	p, ok := g.Node(wide.Parents[parent])
	require.True(t, ok)
	id := types.ShuffleID{Dataset: wide.ID, Parent: parent}
	locations := make([]string, p.NumPartitions)
	for i := 0; i < p.NumPartitions; i++ {
		w := workers[i%len(workers)]
		task := taskFor(g, p, i)
		task.ShuffleWrite = &executor.ShuffleWriteSpec{
			Shuffle:    id,
			NumTargets: wide.NumPartitions,
			RoundRobin: wide.Transform.Kind == types.RepartitionKind,
			Distinct:   wide.Transform.Kind != types.RepartitionKind && wide.Transform.Kind != types.SubtractKind,
		}
		_, err := w.RunTask(context.Background(), task)
		require.NoError(t, err)
		locations[i] = w.ID()
	}
	return executor.ShuffleInput{Shuffle: id, Locations: locations}
}

func collectWide(t *testing.T, g *lineage.Graph, wide *lineage.Node, inputs []executor.ShuffleInput, w *Local) []int64 {
	var all []types.Record
	for i := 0; i < wide.NumPartitions; i++ {
		task := taskFor(g, wide, i)
		task.Inputs = inputs
		task.Action = collect(executor.CollectAction)
		res, err := w.RunTask(context.Background(), task)
		require.NoError(t, err)
		all = append(all, res.Records...)
	}
	return ints(all)
}

func TestShuffles(t *testing.T) {
	g := lineage.NewGraph()
	net := NewNetwork()
	workers := []*Local{newLocal(t, net, "w1"), newLocal(t, net, "w2")}
	dups := source(g, 3, 2, 3)

	distinct := build(g, types.Transformation{Kind: types.DistinctKind, NumPartitions: 2}, dups)
	in := shuffleTo(t, g, distinct, 0, workers)
	require.Equal(t, []int64{0, 1, 2, 3, 4, 5}, collectWide(t, g, distinct, []executor.ShuffleInput{in}, workers[0]))

	repart := build(g, types.Transformation{Kind: types.RepartitionKind, NumPartitions: 4}, dups)
	in = shuffleTo(t, g, repart, 0, workers)
	require.Len(t, collectWide(t, g, repart, []executor.ShuffleInput{in}, workers[1]), 18)

	evens := build(g, types.Transformation{Kind: types.FilterKind, Fn: types.Fn("worker_test.even")}, dups)
	subtract := build(g, types.Transformation{Kind: types.SubtractKind}, dups, evens)
	left, right := shuffleTo(t, g, subtract, 0, workers), shuffleTo(t, g, subtract, 1, workers)
	require.Equal(t, []int64{1, 1, 1, 3, 3, 3, 5, 5, 5}, collectWide(t, g, subtract, []executor.ShuffleInput{left, right}, workers[0]))

	intersection := build(g, types.Transformation{Kind: types.IntersectionKind}, dups, evens)
	left, right = shuffleTo(t, g, intersection, 0, workers), shuffleTo(t, g, intersection, 1, workers)
	require.Equal(t, []int64{0, 2, 4}, collectWide(t, g, intersection, []executor.ShuffleInput{left, right}, workers[1]))
}

func TestLostPeersCauseFetchFailures(t *testing.T) {
	g := lineage.NewGraph()
	net := NewNetwork()
	workers := []*Local{newLocal(t, net, "w1"), newLocal(t, net, "w2")}
	distinct := build(g, types.Transformation{Kind: types.DistinctKind}, source(g, 2, 2, 2))
	in := shuffleTo(t, g, distinct, 0, workers)

	workers[1].Kill()
	_, err := workers[1].RunTask(context.Background(), taskFor(g, distinct, 0))
	require.True(t, errors.IsTransient(err))

	task := taskFor(g, distinct, 0)
	task.Inputs = []executor.ShuffleInput{in}
	task.Action = collect(executor.CollectAction)
	_, err = workers[0].RunTask(context.Background(), task)
	ff, ok := errors.AsFetchFailed(err)
	require.True(t, ok)
	require.Equal(t, "w2", ff.Worker)
	require.Equal(t, 1, ff.Mapper)
}

func TestSampleIsDeterministic(t *testing.T) {
	records := make([]types.Record, 1000)
	for i := range records {
		records[i] = int64(i)
	}
	first := sample(records, false, 0.3, 7, 2)
	require.Equal(t, first, sample(records, false, 0.3, 7, 2))
	require.NotEqual(t, first, sample(records, false, 0.3, 7, 3))
	require.InDelta(t, 300, len(first), 100)
	require.Empty(t, sample(records, false, 0, 7, 2))
	require.Len(t, sample(records, false, 1, 7, 2), 1000)

	replaced := sample(records, true, 2, 7, 2)
	require.Equal(t, replaced, sample(records, true, 2, 7, 2))
	require.InDelta(t, 2000, len(replaced), 300)
}
