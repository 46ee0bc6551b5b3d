package pstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/docker/docker/pkg/locker"
	"github.com/dustin/go-humanize"
	"github.com/go-sif/rdd/internal/partition"
	"github.com/go-sif/rdd/types"
	"github.com/hashicorp/golang-lru/simplelru"
	log "github.com/sirupsen/logrus"
)

// Key identifies a partition of a Dataset
type Key struct {
	Dataset   types.DatasetID
	Partition int
}

// String returns a textual representation of this Key
func (k Key) String() string {
	return fmt.Sprintf("rdd_%d_%d", k.Dataset, k.Partition)
}

// Config configures a Store
type Config struct {
	MemoryBudget    int64 // total bytes of cached records, across shards
	NumShards       int   // number of independently locked shards
	MaxShardEntries int   // maximum number of cached partitions per shard
}

type entry struct {
	records []types.Record
	size    int64
}

type shard struct {
	lock   sync.Mutex
	lru    *simplelru.LRU
	bytes  int64
	budget int64
}

// Store is a sharded, memory-bounded LRU of materialized partitions.
// Cached partitions are only ever copies: anything evicted can be recomputed.
type Store struct {
	shards []*shard
	plocks *locker.Locker
}

// New creates a Store
func New(conf *Config) (*Store, error) {
	if conf.NumShards <= 0 {
		conf.NumShards = 16
	}
	if conf.MaxShardEntries <= 0 {
		conf.MaxShardEntries = 1 << 16
	}
	if conf.MemoryBudget < 0 {
		return nil, fmt.Errorf("Partition store memory budget %d must not be negative", conf.MemoryBudget)
	}
	s := &Store{
		shards: make([]*shard, conf.NumShards),
		plocks: locker.New(),
	}
	for i := range s.shards {
		sh := &shard{budget: conf.MemoryBudget / int64(conf.NumShards)}
		lru, err := simplelru.NewLRU(conf.MaxShardEntries, func(_ interface{}, value interface{}) {
			sh.bytes -= value.(*entry).size
		})
		if err != nil {
			return nil, err
		}
		sh.lru = lru
		s.shards[i] = sh
	}
	return s, nil
}

func (s *Store) shardFor(key Key) *shard {
	return s.shards[xxhash.Sum64String(key.String())%uint64(len(s.shards))]
}

// Get retrieves a cached partition, if present
func (s *Store) Get(key Key) ([]types.Record, bool) {
	sh := s.shardFor(key)
	sh.lock.Lock()
	defer sh.lock.Unlock()
	v, ok := sh.lru.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*entry).records, true
}

// Cache stores a copy of a partition, evicting the least recently used partitions to stay
// within the memory budget. Returns false if the partition is too large to cache at all.
func (s *Store) Cache(key Key, records []types.Record) bool {
	size := partition.EstimateSize(records)
	sh := s.shardFor(key)
	sh.lock.Lock()
	defer sh.lock.Unlock()
	if size > sh.budget {
		log.Debugf("Partition %s (%s) exceeds the cache budget of %s, it will be recomputed on demand", key, humanize.Bytes(uint64(size)), humanize.Bytes(uint64(sh.budget)))
		return false
	}
	// replacing an entry does not trigger the eviction callback
	if old, ok := sh.lru.Peek(key); ok {
		sh.bytes -= old.(*entry).size
	}
	sh.lru.Add(key, &entry{records: records, size: size})
	sh.bytes += size
	for sh.bytes > sh.budget {
		if _, _, ok := sh.lru.RemoveOldest(); !ok {
			break
		}
	}
	return true
}

// Evict drops a cached partition
func (s *Store) Evict(key Key) {
	sh := s.shardFor(key)
	sh.lock.Lock()
	defer sh.lock.Unlock()
	sh.lru.Remove(key)
}

// EvictDataset drops every cached partition of a Dataset, returning the number dropped
func (s *Store) EvictDataset(id types.DatasetID) int {
	evicted := 0
	for _, sh := range s.shards {
		sh.lock.Lock()
		for _, k := range sh.lru.Keys() {
			if k.(Key).Dataset == id {
				sh.lru.Remove(k)
				evicted++
			}
		}
		sh.lock.Unlock()
	}
	return evicted
}

// Purge drops every cached partition
func (s *Store) Purge() {
	for _, sh := range s.shards {
		sh.lock.Lock()
		sh.lru.Purge()
		sh.bytes = 0
		sh.lock.Unlock()
	}
}

// Len returns the number of cached partitions
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.lock.Lock()
		n += sh.lru.Len()
		sh.lock.Unlock()
	}
	return n
}

// Size returns the estimated number of bytes of cached partitions
func (s *Store) Size() int64 {
	var n int64
	for _, sh := range s.shards {
		sh.lock.Lock()
		n += sh.bytes
		sh.lock.Unlock()
	}
	return n
}

// Materialize returns the records of a partition, computing them if necessary. When cache is
// true, the result is cached and concurrent callers for the same key compute it only once.
func (s *Store) Materialize(ctx context.Context, key Key, cache bool, compute func(ctx context.Context) ([]types.Record, error)) ([]types.Record, error) {
	if !cache {
		return compute(ctx)
	}
	if records, ok := s.Get(key); ok {
		return records, nil
	}
	name := key.String()
	s.plocks.Lock(name)
	defer s.plocks.Unlock(name)
	if records, ok := s.Get(key); ok {
		return records, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	s.Cache(key, records)
	return records, nil
}
