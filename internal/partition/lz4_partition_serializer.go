package partition

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/go-sif/rdd/types"
	"github.com/pierrec/lz4"
)

type block struct {
	Records []types.Record
}

// LZ4PartitionSerializer serializes partition records with gob, compressed with the lz4 algorithm.
// It holds no state, so it is safe for concurrent use.
type LZ4PartitionSerializer struct{}

// NewLZ4PartitionSerializer instantiates a new LZ4PartitionSerializer
func NewLZ4PartitionSerializer() *LZ4PartitionSerializer {
	return &LZ4PartitionSerializer{}
}

// Serialize serializes and compresses partition records to a write stream
func (s *LZ4PartitionSerializer) Serialize(w io.Writer, records []types.Record) error {
	compressor := lz4.NewWriter(w)
	if err := gob.NewEncoder(compressor).Encode(&block{Records: records}); err != nil {
		return fmt.Errorf("Unable to serialize partition data: %w", err)
	}
	return compressor.Close()
}

// Deserialize decompresses and deserializes partition records from a read stream
func (s *LZ4PartitionSerializer) Deserialize(r io.Reader) ([]types.Record, error) {
	var b block
	if err := gob.NewDecoder(lz4.NewReader(r)).Decode(&b); err != nil {
		return nil, fmt.Errorf("Unable to deserialize partition data: %w", err)
	}
	return b.Records, nil
}

// Encode serializes partition records to bytes
func (s *LZ4PartitionSerializer) Encode(records []types.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Serialize(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes partition records from bytes
func (s *LZ4PartitionSerializer) Decode(data []byte) ([]types.Record, error) {
	return s.Deserialize(bytes.NewReader(data))
}

// EstimateSize approximates the in-memory footprint of partition records, in bytes
func EstimateSize(records []types.Record) int64 {
	size := int64(24 + 16*len(records))
	for _, r := range records {
		switch v := r.(type) {
		case string:
			size += int64(len(v))
		case []byte:
			size += int64(24 + len(v))
		default:
			size += 8
		}
	}
	return size
}
