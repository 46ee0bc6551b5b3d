package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/internal/executor"
	"github.com/go-sif/rdd/internal/pstore"
	"github.com/go-sif/rdd/internal/shuffle"
	"github.com/go-sif/rdd/types"
	log "github.com/sirupsen/logrus"
)

// Local is an in-process worker
type Local struct {
	runtime *Runtime
	slots   int
	killed  int32
}

// ID returns the id of this worker
func (l *Local) ID() string {
	return l.runtime.ID()
}

// Address returns an empty address: peers reach Local workers through their Network
func (l *Local) Address() string {
	return ""
}

// Slots returns the number of tasks this worker runs concurrently
func (l *Local) Slots() int {
	return l.slots
}

// Runtime returns the Runtime backing this worker
func (l *Local) Runtime() *Runtime {
	return l.runtime
}

// RunTask runs a task in-process
func (l *Local) RunTask(ctx context.Context, task *executor.Task) (*executor.TaskResult, error) {
	if l.IsKilled() {
		return nil, errors.WorkerUnreachableError{Worker: l.ID()}
	}
	res, err := l.runtime.Run(ctx, task)
	if l.IsKilled() {
		// whatever the task produced died with the worker
		return nil, errors.WorkerUnreachableError{Worker: l.ID()}
	}
	return res, err
}

// Heartbeat fails once the worker has been killed
func (l *Local) Heartbeat(ctx context.Context) error {
	if l.IsKilled() {
		return errors.WorkerUnreachableError{Worker: l.ID()}
	}
	return nil
}

// Unpersist drops every cached partition of a Dataset
func (l *Local) Unpersist(ctx context.Context, id types.DatasetID) error {
	if l.IsKilled() {
		return errors.WorkerUnreachableError{Worker: l.ID()}
	}
	l.runtime.Unpersist(id)
	return nil
}

// Kill simulates the loss of this worker: its cached partitions and shuffle blocks are
// dropped and every subsequent request fails as unreachable
func (l *Local) Kill() {
	if atomic.CompareAndSwapInt32(&l.killed, 0, 1) {
		log.WithField("worker", l.ID()).Warn("Worker killed")
		l.runtime.Reset()
	}
}

// IsKilled returns true iff Kill has been called
func (l *Local) IsKilled() bool {
	return atomic.LoadInt32(&l.killed) == 1
}

// Network connects in-process workers, serving shuffle blocks between them
type Network struct {
	lock    sync.RWMutex
	workers map[string]*Local
}

// NewNetwork creates an empty Network
func NewNetwork() *Network {
	return &Network{workers: make(map[string]*Local)}
}

// NewLocal creates an in-process worker attached to this Network
func (n *Network) NewLocal(id string, slots int, storeConf *pstore.Config) (*Local, error) {
	store, err := pstore.New(storeConf)
	if err != nil {
		return nil, err
	}
	if slots <= 0 {
		slots = 1
	}
	l := &Local{runtime: NewRuntime(id, store, n), slots: slots}
	n.lock.Lock()
	defer n.lock.Unlock()
	if _, exists := n.workers[id]; exists {
		return nil, fmt.Errorf("Worker %s already exists", id)
	}
	n.workers[id] = l
	return l, nil
}

// Workers returns every worker attached to this Network
func (n *Network) Workers() []*Local {
	n.lock.RLock()
	defer n.lock.RUnlock()
	res := make([]*Local, 0, len(n.workers))
	for _, l := range n.workers {
		res = append(res, l)
	}
	return res
}

// FetchBlock retrieves a shuffle block from another worker on this Network
func (n *Network) FetchBlock(ctx context.Context, peer shuffle.Peer, id shuffle.BlockID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.lock.RLock()
	l, ok := n.workers[peer.ID]
	n.lock.RUnlock()
	if !ok || l.IsKilled() {
		return nil, errors.WorkerUnreachableError{Worker: peer.ID}
	}
	data, ok := l.runtime.ServeBlock(id)
	if !ok {
		return nil, fmt.Errorf("Block %s is not held by worker %s", id, peer.ID)
	}
	return data, nil
}
