package memory

import (
	"context"
	"testing"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/types"
	"github.com/stretchr/testify/require"
)

func TestSlicesAreEven(t *testing.T) {
	var sizes []int
	for i := 0; i < 3; i++ {
		start, end := Slice(i, 10, 3)
		sizes = append(sizes, end-start)
	}
	require.Equal(t, []int{3, 3, 4}, sizes)
}

func TestParallelize(t *testing.T) {
	data := []types.Record{"a", "b", "c", "d", "e"}
	desc, err := Parallelize(types.StringType, data, 2)
	require.NoError(t, err)
	require.Equal(t, 2, desc.NumPartitions)
	src, err := types.LookupSource(Kind)
	require.NoError(t, err)

	var all []types.Record
	for i := 0; i < desc.NumPartitions; i++ {
		records, err := src.Read(context.Background(), desc, i)
		require.NoError(t, err)
		all = append(all, records...)
	}
	require.Equal(t, data, all)
}

func TestParallelizeEmptyAndInvalid(t *testing.T) {
	desc, err := Parallelize(types.IntType, nil, 4)
	require.NoError(t, err)
	src, _ := types.LookupSource(Kind)
	records, err := src.Read(context.Background(), desc, 3)
	require.NoError(t, err)
	require.Empty(t, records)

	_, err = Parallelize(types.IntType, []types.Record{int64(1), "two"}, 1)
	require.ErrorAs(t, err, &errors.TypeMismatchError{})
	_, err = Parallelize(types.IntType, nil, 0)
	require.ErrorAs(t, err, &errors.PlanningError{})
}

func TestTrimmedDescriptorsOnlyServeTheirSlices(t *testing.T) {
	desc, err := Parallelize(types.IntType, []types.Record{int64(1), int64(2), int64(3), int64(4)}, 2)
	require.NoError(t, err)
	trimmed := desc.ForPartitions(map[int]bool{1: true})
	require.NotNil(t, desc.Slices[0])
	src, _ := types.LookupSource(Kind)

	records, err := src.Read(context.Background(), trimmed, 1)
	require.NoError(t, err)
	require.Equal(t, []types.Record{int64(3), int64(4)}, records)
	_, err = src.Read(context.Background(), trimmed, 0)
	require.Error(t, err)
}
