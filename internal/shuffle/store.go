package shuffle

import (
	"fmt"
	"sync"

	"github.com/go-sif/rdd/internal/partition"
	"github.com/go-sif/rdd/types"
)

// BlockID identifies the records a single mapper produced for a single target partition
type BlockID struct {
	Shuffle types.ShuffleID
	Mapper  int
	Target  int
}

// String returns a textual representation of this BlockID
func (b BlockID) String() string {
	return fmt.Sprintf("%s-%d-%d", b.Shuffle, b.Mapper, b.Target)
}

type outputKey struct {
	shuffle types.ShuffleID
	mapper  int
}

type mapOutput struct {
	blocks  [][]byte
	records int
}

// Store holds the shuffle blocks written by the map tasks which ran on a worker
type Store struct {
	outputs    sync.Map // outputKey -> *mapOutput
	serializer *partition.LZ4PartitionSerializer
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{serializer: partition.NewLZ4PartitionSerializer()}
}

// Write persists the output of a mapper, one bucket per target partition. A mapper's output is
// replaced atomically, so a re-executed mapper never duplicates records.
func (s *Store) Write(shuffle types.ShuffleID, mapper int, buckets [][]types.Record) error {
	out := &mapOutput{blocks: make([][]byte, len(buckets))}
	for i, bucket := range buckets {
		data, err := s.serializer.Encode(bucket)
		if err != nil {
			return fmt.Errorf("Unable to write block %s: %w", BlockID{shuffle, mapper, i}, err)
		}
		out.blocks[i] = data
		out.records += len(bucket)
	}
	s.outputs.Store(outputKey{shuffle, mapper}, out)
	return nil
}

// Block retrieves a compressed block
func (s *Store) Block(id BlockID) ([]byte, bool) {
	v, ok := s.outputs.Load(outputKey{id.Shuffle, id.Mapper})
	if !ok {
		return nil, false
	}
	out := v.(*mapOutput)
	if id.Target < 0 || id.Target >= len(out.blocks) {
		return nil, false
	}
	return out.blocks[id.Target], true
}

// Has returns true iff the output of a mapper is present
func (s *Store) Has(shuffle types.ShuffleID, mapper int) bool {
	_, ok := s.outputs.Load(outputKey{shuffle, mapper})
	return ok
}

// RemoveShuffle drops every block belonging to a shuffle
func (s *Store) RemoveShuffle(shuffle types.ShuffleID) {
	s.outputs.Range(func(k, _ interface{}) bool {
		if k.(outputKey).shuffle == shuffle {
			s.outputs.Delete(k)
		}
		return true
	})
}

// Clear drops every block
func (s *Store) Clear() {
	s.outputs.Range(func(k, _ interface{}) bool {
		s.outputs.Delete(k)
		return true
	})
}

// Bytes returns the compressed size of all stored blocks
func (s *Store) Bytes() int64 {
	var total int64
	s.outputs.Range(func(_, v interface{}) bool {
		for _, b := range v.(*mapOutput).blocks {
			total += int64(len(b))
		}
		return true
	})
	return total
}
