// Package memory provides a Source which parallelizes an in-memory collection. The collection is
// sliced as evenly as possible and each slice travels, compressed, inside the source descriptor,
// with only the tasks reading it.
package memory

import (
	"context"
	"fmt"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/internal/partition"
	"github.com/go-sif/rdd/types"
)

// Kind is the registered kind of the in-memory Source
const Kind = "memory"

// DataSource serves the slices of parallelized collections
type DataSource struct {
	serializer *partition.LZ4PartitionSerializer
}

func init() {
	types.RegisterSource(Kind, &DataSource{serializer: partition.NewLZ4PartitionSerializer()})
}

// Slice returns the bounds of slice i of n elements divided into k slices
func Slice(i int, n int, k int) (start int, end int) {
	return int(int64(i) * int64(n) / int64(k)), int(int64(i+1) * int64(n) / int64(k))
}

// Parallelize describes a source Dataset containing data, divided into numSlices partitions.
// Every element must be of type elem.
func Parallelize(elem types.ElemType, data []types.Record, numSlices int) (*types.SourceDescriptor, error) {
	if !elem.Valid() {
		return nil, errors.PlanningError{Op: "parallelize", Reason: fmt.Sprintf("invalid element type %q", elem)}
	}
	if numSlices <= 0 {
		return nil, errors.PlanningError{Op: "parallelize", Reason: fmt.Sprintf("number of slices must be positive, got %d", numSlices)}
	}
	if err := elem.CheckAll("parallelize", data); err != nil {
		return nil, err
	}
	serializer := partition.NewLZ4PartitionSerializer()
	slices := make([][]byte, numSlices)
	for i := range slices {
		start, end := Slice(i, len(data), numSlices)
		encoded, err := serializer.Encode(data[start:end])
		if err != nil {
			return nil, err
		}
		slices[i] = encoded
	}
	return &types.SourceDescriptor{
		Kind:          Kind,
		Location:      fmt.Sprintf("%d element(s)", len(data)),
		NumPartitions: numSlices,
		Elem:          elem,
		Slices:        slices,
	}, nil
}

// Read decodes a single slice of a parallelized collection
func (ds *DataSource) Read(ctx context.Context, desc *types.SourceDescriptor, index int) ([]types.Record, error) {
	if index < 0 || index >= len(desc.Slices) {
		return nil, fmt.Errorf("Slice %d does not exist (%d slices)", index, len(desc.Slices))
	}
	if desc.Slices[index] == nil {
		return nil, fmt.Errorf("Slice %d was not shipped with %s", index, desc)
	}
	records, err := ds.serializer.Decode(desc.Slices[index])
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []types.Record{}
	}
	return records, nil
}
