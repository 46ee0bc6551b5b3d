package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/internal/recovery"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// TaskState is the lifecycle state of a submitted Task
type TaskState int32

const (
	// Pending Tasks are waiting for a worker slot
	Pending TaskState = iota
	// Running Tasks are executing on a worker
	Running
	// Succeeded Tasks have a result
	Succeeded
	// Failed Tasks have exhausted their attempts, or failed terminally
	Failed
)

// PoolConfig configures a Pool
type PoolConfig struct {
	MaxAttempts  int           // attempts per Task, across workers
	RetryBackoff time.Duration // pause between attempts
}

type slot struct {
	worker  Worker
	sem     *semaphore.Weighted
	running int64
}

func (s *slot) free() int64 {
	return int64(s.worker.Slots()) - atomic.LoadInt64(&s.running)
}

// Pool runs Tasks on a set of Workers, bounding concurrency by each Worker's slots and
// retrying transient failures on other Workers
type Pool struct {
	conf    *PoolConfig
	health  *recovery.Health
	lock    sync.RWMutex
	workers []*slot
	next    uint64
}

// NewPool creates an empty Pool
func NewPool(conf *PoolConfig, health *recovery.Health) *Pool {
	if conf.MaxAttempts <= 0 {
		conf.MaxAttempts = 4
	}
	return &Pool{conf: conf, health: health}
}

// AddWorker makes a Worker available to run Tasks
func (p *Pool) AddWorker(w Worker) {
	slots := w.Slots()
	if slots <= 0 {
		slots = 1
	}
	p.lock.Lock()
	p.workers = append(p.workers, &slot{worker: w, sem: semaphore.NewWeighted(int64(slots))})
	p.lock.Unlock()
	p.health.Register(w.ID())
}

// Workers returns every Worker in the Pool, including Lost ones
func (p *Pool) Workers() []Worker {
	p.lock.RLock()
	defer p.lock.RUnlock()
	res := make([]Worker, len(p.workers))
	for i, s := range p.workers {
		res[i] = s.worker
	}
	return res
}

// Pingers returns every Worker which is not Lost, for heartbeat monitoring
func (p *Pool) Pingers() []recovery.Pinger {
	var res []recovery.Pinger
	for _, w := range p.Workers() {
		if p.health.State(w.ID()) != recovery.Lost {
			res = append(res, w)
		}
	}
	return res
}

// Peers maps the id of every Worker to its address
func (p *Pool) Peers() map[string]string {
	peers := make(map[string]string)
	for _, w := range p.Workers() {
		peers[w.ID()] = w.Address()
	}
	return peers
}

// Worker retrieves a Worker by id
func (p *Pool) Worker(id string) (Worker, bool) {
	for _, w := range p.Workers() {
		if w.ID() == id {
			return w, true
		}
	}
	return nil, false
}

// pick chooses a worker for a Task: untried Alive workers first, then untried Suspected
// workers, then any worker which is not Lost. Ties go to the worker with the most free slots.
func (p *Pool) pick(tried map[string]bool) *slot {
	p.lock.RLock()
	defer p.lock.RUnlock()
	n := len(p.workers)
	if n == 0 {
		return nil
	}
	offset := int(atomic.AddUint64(&p.next, 1) % uint64(n))
	classes := []func(s *slot, state recovery.WorkerState) bool{
		func(s *slot, state recovery.WorkerState) bool { return !tried[s.worker.ID()] && state == recovery.Alive },
		func(s *slot, state recovery.WorkerState) bool { return !tried[s.worker.ID()] && state == recovery.Suspected },
		func(s *slot, state recovery.WorkerState) bool { return state != recovery.Lost },
	}
	for _, eligible := range classes {
		var best *slot
		for i := 0; i < n; i++ {
			s := p.workers[(offset+i)%n]
			if !eligible(s, p.health.State(s.worker.ID())) {
				continue
			}
			if best == nil || s.free() > best.free() {
				best = s
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}

// Handle tracks a submitted Task
type Handle struct {
	task   *Task
	state  int32
	done   chan struct{}
	result *TaskResult
	err    error
}

// State returns the current state of the Task
func (h *Handle) State() TaskState {
	return TaskState(atomic.LoadInt32(&h.state))
}

// Done is closed once the Task has Succeeded or Failed
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Await blocks until the Task has Succeeded or Failed
func (h *Handle) Await() (*TaskResult, error) {
	<-h.done
	return h.result, h.err
}

// Submit schedules a Task. Cancelling ctx cancels the Task.
func (p *Pool) Submit(ctx context.Context, task *Task) *Handle {
	h := &Handle{task: task, done: make(chan struct{})}
	go p.run(ctx, h)
	return h
}

func (p *Pool) run(ctx context.Context, h *Handle) {
	defer close(h.done)
	fail := func(err error) {
		h.err = err
		atomic.StoreInt32(&h.state, int32(Failed))
	}
	tried := make(map[string]bool)
	var lastErr error
	var lastWorker string
	attempts := 0
	for attempts < p.conf.MaxAttempts {
		if err := ctx.Err(); err != nil {
			fail(err)
			return
		}
		s := p.pick(tried)
		if s == nil {
			lastErr = errors.NoWorkersError{}
			break
		}
		if err := s.sem.Acquire(ctx, 1); err != nil {
			fail(err)
			return
		}
		attempts++
		atomic.AddInt64(&s.running, 1)
		atomic.StoreInt32(&h.state, int32(Running))
		t := *h.task
		t.Attempt = attempts
		id := s.worker.ID()
		res, err := s.worker.RunTask(ctx, &t)
		atomic.AddInt64(&s.running, -1)
		s.sem.Release(1)
		if err == nil {
			if len(res.Worker) == 0 {
				res.Worker = id
			}
			h.result = res
			atomic.StoreInt32(&h.state, int32(Succeeded))
			return
		}
		lastErr, lastWorker = err, id
		if ctxErr := ctx.Err(); ctxErr != nil {
			fail(ctxErr)
			return
		}
		if _, ok := errors.AsFetchFailed(err); ok {
			// the scheduler recovers lost shuffle inputs
			fail(err)
			return
		}
		if !errors.IsTransient(err) {
			break
		}
		log.Warnf("Task (%s) failed on worker %s, retrying: %v", &t, id, err)
		p.health.ReportFailure(id)
		tried[id] = true
		if p.conf.RetryBackoff > 0 {
			select {
			case <-ctx.Done():
				fail(ctx.Err())
				return
			case <-time.After(p.conf.RetryBackoff):
			}
		}
	}
	fail(errors.TaskError{
		Stage:     h.task.StageID,
		Partition: h.task.Partition,
		Attempts:  attempts,
		Worker:    lastWorker,
		Err:       lastErr,
	})
}
