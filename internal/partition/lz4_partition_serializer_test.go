package partition

import (
	"testing"

	"github.com/go-sif/rdd/types"
	"github.com/stretchr/testify/require"
)

func TestSerializeMixedRecords(t *testing.T) {
	s := NewLZ4PartitionSerializer()
	records := []types.Record{int64(1), 2.5, "abc", []byte("xyz"), true}
	data, err := s.Encode(records)
	require.NoError(t, err)
	decoded, err := s.Decode(data)
	require.NoError(t, err)
	require.Equal(t, records, decoded)
}

func TestSerializeEmptyPartition(t *testing.T) {
	s := NewLZ4PartitionSerializer()
	data, err := s.Encode(nil)
	require.NoError(t, err)
	decoded, err := s.Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded, 0)
}

func TestEstimateSizeGrowsWithContent(t *testing.T) {
	small := EstimateSize([]types.Record{"a"})
	large := EstimateSize([]types.Record{"a", string(make([]byte, 1024))})
	require.Greater(t, large, small+1024)
}
