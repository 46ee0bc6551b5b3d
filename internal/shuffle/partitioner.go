package shuffle

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/go-sif/rdd/types"
)

// A Partitioner assigns records to target partitions
type Partitioner interface {
	NumPartitions() int
	Partition(r types.Record, position int) int // position is the index of the record within its source partition
}

// KeyOf computes a canonical, type-tagged key for a record. Equal records have equal keys
// and records of different types never collide.
func KeyOf(r types.Record) string {
	switch v := r.(type) {
	case int64:
		return "i:" + strconv.FormatInt(v, 10)
	case float64:
		return "f:" + strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return "s:" + v
	case []byte:
		return "b:" + string(v)
	case bool:
		return "t:" + strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%T:%v", r, r)
	}
}

// HashPartitioner sends equal records to the same target partition
type HashPartitioner struct {
	N int
}

// NumPartitions returns the number of target partitions
func (p *HashPartitioner) NumPartitions() int {
	return p.N
}

// Partition assigns a record to a target partition by hashing its key
func (p *HashPartitioner) Partition(r types.Record, _ int) int {
	return int(xxhash.Sum64String(KeyOf(r)) % uint64(p.N))
}

// RoundRobinPartitioner spreads records evenly across target partitions, starting from a
// position derived from the mapper index so that small mappers do not all fill partition 0
type RoundRobinPartitioner struct {
	N      int
	Mapper int
}

// NumPartitions returns the number of target partitions
func (p *RoundRobinPartitioner) NumPartitions() int {
	return p.N
}

// Partition assigns a record to a target partition by its position
func (p *RoundRobinPartitioner) Partition(_ types.Record, position int) int {
	return (p.Mapper + position) % p.N
}

// Bucket splits records into one bucket per target partition
func Bucket(records []types.Record, p Partitioner) [][]types.Record {
	buckets := make([][]types.Record, p.NumPartitions())
	for i, r := range records {
		t := p.Partition(r, i)
		buckets[t] = append(buckets[t], r)
	}
	return buckets
}
