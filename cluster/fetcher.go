package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/internal/rpc"
	"github.com/go-sif/rdd/internal/shuffle"
	"github.com/hashicorp/go-multierror"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// blockFetcher retrieves shuffle blocks from peer workers, keeping a connection open to each
type blockFetcher struct {
	lock  sync.Mutex
	conns map[string]*grpc.ClientConn
}

func newBlockFetcher() *blockFetcher {
	return &blockFetcher{conns: make(map[string]*grpc.ClientConn)}
}

func (f *blockFetcher) connection(ctx context.Context, address string) (*grpc.ClientConn, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if conn, ok := f.conns[address]; ok {
		return conn, nil
	}
	conn, err := rpc.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	f.conns[address] = conn
	return conn, nil
}

// FetchBlock retrieves a single shuffle block from a peer
func (f *blockFetcher) FetchBlock(ctx context.Context, peer shuffle.Peer, id shuffle.BlockID) ([]byte, error) {
	if len(peer.Address) == 0 {
		return nil, errors.WorkerUnreachableError{Worker: peer.ID, Err: fmt.Errorf("worker has no known address")}
	}
	conn, err := f.connection(ctx, peer.Address)
	if err != nil {
		return nil, errors.WorkerUnreachableError{Worker: peer.ID, Err: err}
	}
	data, err := rpc.NewWorkerServiceClient(conn).FetchBlock(ctx, &rpc.FetchBlockRequest{Shuffle: id.Shuffle, Mapper: id.Mapper, Target: id.Target})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("Block %s is not held by worker %s", id, peer.ID)
		}
		return nil, errors.WorkerUnreachableError{Worker: peer.ID, Err: err}
	}
	return data, nil
}

// Close closes every connection to peers
func (f *blockFetcher) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	var merr *multierror.Error
	for address, conn := range f.conns {
		if err := conn.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
		delete(f.conns, address)
	}
	return merr.ErrorOrNil()
}
