package shuffle

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/types"
	"github.com/stretchr/testify/require"
)

var testShuffle = types.ShuffleID{Dataset: 4, Parent: 0}

// peerFetcher reads blocks straight out of other workers' stores
type peerFetcher map[string]*Store

func (f peerFetcher) FetchBlock(ctx context.Context, peer Peer, id BlockID) ([]byte, error) {
	s, ok := f[peer.ID]
	if !ok {
		return nil, errors.WorkerUnreachableError{Worker: peer.ID}
	}
	data, ok := s.Block(id)
	if !ok {
		return nil, fmt.Errorf("block %s is missing", id)
	}
	return data, nil
}

func ints(vals ...int64) []types.Record {
	res := make([]types.Record, len(vals))
	for i, v := range vals {
		res[i] = v
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

func TestHashPartitionerIsDeterministic(t *testing.T) {
	p := &HashPartitioner{N: 4}
	for _, r := range ints(1, 2, 3, 42, 1000) {
		first := p.Partition(r, 0)
		require.Equal(t, first, p.Partition(r, 99))
		require.True(t, first >= 0 && first < 4)
	}
	require.NotEqual(t, KeyOf(int64(1)), KeyOf("1"))
	require.Equal(t, KeyOf([]byte("ab")), KeyOf([]byte("ab")))
}

func TestRoundRobinPartitionerIsBalanced(t *testing.T) {
	buckets := Bucket(ints(1, 2, 3, 4, 5, 6, 7, 8), &RoundRobinPartitioner{N: 4, Mapper: 1})
	require.Len(t, buckets, 4)
	for _, b := range buckets {
		require.Len(t, b, 2)
	}
	require.Equal(t, ints(1, 5), buckets[1])
}

func TestWriteIsIdempotentPerMapper(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Write(testShuffle, 0, [][]types.Record{ints(1, 2), ints(3)}))
	// a retried mapper replaces its previous output
	require.NoError(t, s.Write(testShuffle, 0, [][]types.Record{ints(1, 2), ints(3)}))
	r := NewReader("w1", s, nil)
	res, err := r.Read(context.Background(), testShuffle, 0, []string{"w1"}, nil)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, sorted(res))
}

func TestReadMergesAcrossMappersAndPeers(t *testing.T) {
	local, remote := NewStore(), NewStore()
	require.NoError(t, local.Write(testShuffle, 0, [][]types.Record{ints(1), ints(2)}))
	require.NoError(t, remote.Write(testShuffle, 1, [][]types.Record{ints(3), ints(4)}))
	r := NewReader("w1", local, peerFetcher{"w2": remote})

	res, err := r.Read(context.Background(), testShuffle, 1, []string{"w1", "w2"}, map[string]string{"w2": "localhost:1"})
	require.NoError(t, err)
	require.Equal(t, []int64{2, 4}, sorted(res))
}

func TestReadReportsFetchFailures(t *testing.T) {
	local := NewStore()
	require.NoError(t, local.Write(testShuffle, 0, [][]types.Record{ints(1)}))
	r := NewReader("w1", local, peerFetcher{})

	_, err := r.Read(context.Background(), testShuffle, 0, []string{"w1", ""}, nil)
	ff, ok := errors.AsFetchFailed(err)
	require.True(t, ok)
	require.Equal(t, 1, ff.Mapper)

	_, err = r.Read(context.Background(), testShuffle, 0, []string{"w1", "w3"}, nil)
	ff, ok = errors.AsFetchFailed(err)
	require.True(t, ok)
	require.Equal(t, "w3", ff.Worker)
	require.True(t, errors.IsTransient(err))
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	tr.Register(testShuffle, 3)
	require.Equal(t, []int{0, 1, 2}, tr.Missing(testShuffle))
	tr.RegisterOutput(testShuffle, 0, "w1")
	tr.RegisterOutput(testShuffle, 1, "w2")
	tr.RegisterOutput(testShuffle, 2, "w1")
	require.Empty(t, tr.Missing(testShuffle))

	// re-registering keeps known outputs
	tr.Register(testShuffle, 3)
	require.Empty(t, tr.Missing(testShuffle))

	require.Equal(t, []types.ShuffleID{testShuffle}, tr.RemoveWorker("w1"))
	require.Equal(t, []int{0, 2}, tr.Missing(testShuffle))
	require.Equal(t, []string{"", "w2", ""}, tr.Locations(testShuffle))

	tr.RemoveOutput(testShuffle, 1)
	require.Len(t, tr.Missing(testShuffle), 3)
}

func TestRemoveShuffle(t *testing.T) {
	s := NewStore()
	other := types.ShuffleID{Dataset: 5, Parent: 1}
	require.NoError(t, s.Write(testShuffle, 0, [][]types.Record{ints(1)}))
	require.NoError(t, s.Write(other, 0, [][]types.Record{ints(1)}))
	require.Greater(t, s.Bytes(), int64(0))
	s.RemoveShuffle(testShuffle)
	require.False(t, s.Has(testShuffle, 0))
	require.True(t, s.Has(other, 0))
	s.Clear()
	require.False(t, s.Has(other, 0))
}
