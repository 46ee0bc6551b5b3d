package lineage

import (
	"testing"

	"github.com/go-sif/rdd/types"
	"github.com/stretchr/testify/require"
)

func slicedSource(t *testing.T, g *Graph, numPartitions int) *Node {
	slices := make([][]byte, numPartitions)
	for i := range slices {
		slices[i] = []byte{byte(i)}
	}
	n, err := g.Build(types.Transformation{
		Kind:   types.SourceKind,
		Source: &types.SourceDescriptor{Kind: "lineage_test", Elem: types.IntType, NumPartitions: numPartitions, Slices: slices},
	})
	require.NoError(t, err)
	return n
}

func shippedSlices(nodes []*Node, id types.DatasetID) [][]byte {
	for _, n := range nodes {
		if n.ID == id {
			return n.Transform.Source.Slices
		}
	}
	return nil
}

func TestForPartitionShipsOnlyReadSlices(t *testing.T) {
	g := NewGraph()
	left := slicedSource(t, g, 2)
	right := slicedSource(t, g, 3)
	doubled, err := g.Build(types.Transformation{Kind: types.MapKind, Fn: types.Fn("lineage_test.double")}, right.ID)
	require.NoError(t, err)
	union, err := g.Build(types.Transformation{Kind: types.UnionKind}, left.ID, doubled.ID)
	require.NoError(t, err)
	nodes, _, err := g.Snapshot(union.ID)
	require.NoError(t, err)

	// partition 3 of the union is partition 1 of its second parent
	shipped := ForPartition(nodes, union.ID, 3)
	require.Len(t, shipped, len(nodes))
	require.Equal(t, [][]byte{nil, nil}, shippedSlices(shipped, left.ID))
	require.Equal(t, [][]byte{nil, {1}, nil}, shippedSlices(shipped, right.ID))

	// the graph itself is untouched
	require.Equal(t, [][]byte{{0}, {1}, {2}}, right.Transform.Source.Slices)
}

func TestForPartitionStopsAtShuffles(t *testing.T) {
	g := NewGraph()
	src := slicedSource(t, g, 2)
	distinct, err := g.Build(types.Transformation{Kind: types.DistinctKind}, src.ID)
	require.NoError(t, err)
	nodes, _, err := g.Snapshot(distinct.ID)
	require.NoError(t, err)
	require.Equal(t, [][]byte{nil, nil}, shippedSlices(ForPartition(nodes, distinct.ID, 0), src.ID))
	require.Equal(t, [][]byte{nil, {1}}, shippedSlices(ForPartition(nodes, src.ID, 1), src.ID))
}
