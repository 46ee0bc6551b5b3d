package shuffle

import (
	"context"
	"fmt"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/internal/partition"
	"github.com/go-sif/rdd/types"
	"golang.org/x/sync/errgroup"
)

// Peer is a worker which may hold shuffle blocks
type Peer struct {
	ID      string
	Address string
}

// A Fetcher retrieves compressed shuffle blocks from other workers
type Fetcher interface {
	FetchBlock(ctx context.Context, peer Peer, id BlockID) ([]byte, error)
}

// Reader merges the blocks of a target partition across every mapper of a shuffle
type Reader struct {
	self       string
	local      *Store
	fetcher    Fetcher
	serializer *partition.LZ4PartitionSerializer
}

// NewReader creates a Reader for the worker self, whose own blocks are in local
func NewReader(self string, local *Store, fetcher Fetcher) *Reader {
	return &Reader{self: self, local: local, fetcher: fetcher, serializer: partition.NewLZ4PartitionSerializer()}
}

// Read returns the records of a target partition. locations holds, for each mapper, the id of
// the worker holding its output, and peers maps worker ids to addresses. The order of the
// returned records is unspecified.
func (r *Reader) Read(ctx context.Context, shuffle types.ShuffleID, target int, locations []string, peers map[string]string) ([]types.Record, error) {
	parts := make([][]types.Record, len(locations))
	g, gctx := errgroup.WithContext(ctx)
	for mapper, loc := range locations {
		mapper, loc := mapper, loc
		g.Go(func() error {
			records, err := r.readBlock(gctx, BlockID{Shuffle: shuffle, Mapper: mapper, Target: target}, loc, peers)
			if err != nil {
				return err
			}
			parts[mapper] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var total int
	for _, p := range parts {
		total += len(p)
	}
	merged := make([]types.Record, 0, total)
	for _, p := range parts {
		merged = append(merged, p...)
	}
	return merged, nil
}

func (r *Reader) readBlock(ctx context.Context, id BlockID, loc string, peers map[string]string) ([]types.Record, error) {
	failed := func(err error) error {
		return errors.FetchFailedError{Shuffle: id.Shuffle.String(), Mapper: id.Mapper, Worker: loc, Err: err}
	}
	if len(loc) == 0 {
		return nil, failed(fmt.Errorf("map output is not available"))
	}
	var data []byte
	if loc == r.self {
		var ok bool
		data, ok = r.local.Block(id)
		if !ok {
			return nil, failed(fmt.Errorf("block %s is missing", id))
		}
	} else {
		if r.fetcher == nil {
			return nil, failed(fmt.Errorf("no fetcher configured"))
		}
		var err error
		data, err = r.fetcher.FetchBlock(ctx, Peer{ID: loc, Address: peers[loc]}, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, failed(err)
		}
	}
	records, err := r.serializer.Decode(data)
	if err != nil {
		return nil, failed(err)
	}
	return records, nil
}
