package rdd

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-sif/rdd/datasource/file"
	"github.com/go-sif/rdd/datasource/jsonl"
	"github.com/go-sif/rdd/datasource/memory"
	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/internal/executor"
	"github.com/go-sif/rdd/internal/lineage"
	"github.com/go-sif/rdd/internal/pstore"
	"github.com/go-sif/rdd/internal/recovery"
	"github.com/go-sif/rdd/internal/scheduler"
	"github.com/go-sif/rdd/internal/shuffle"
	"github.com/go-sif/rdd/internal/stats"
	"github.com/go-sif/rdd/internal/util"
	"github.com/go-sif/rdd/internal/worker"
	"github.com/go-sif/rdd/logging"
	"github.com/go-sif/rdd/types"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// Worker runs tasks on behalf of a Session. Workers are either in-process (see NewLocalSession)
// or remote (see the cluster package).
type Worker = executor.Worker

// SessionState describes the lifecycle of a Session
type SessionState int

const (
	// SessionOpen Sessions have not run a job yet
	SessionOpen SessionState = iota
	// SessionActive Sessions have run at least one job
	SessionActive
	// SessionClosed Sessions have released their workers, and can no longer be used
	SessionClosed
)

// String returns a textual representation of this SessionState
func (s SessionState) String() string {
	switch s {
	case SessionOpen:
		return "open"
	case SessionActive:
		return "active"
	default:
		return "closed"
	}
}

// Session is the entry point to the engine. It owns a pool of workers, the lineage graph of
// every Dataset created through it, and the bookkeeping required to recover lost data.
// Sessions are safe for concurrent use.
type Session struct {
	conf       *Config
	lock       sync.Mutex
	state      SessionState
	jobs       sync.WaitGroup
	cancels    map[int]context.CancelFunc
	nextJob    int
	graph      *lineage.Graph
	pool       *executor.Pool
	health     *recovery.Health
	tracker    *shuffle.Tracker
	controller *recovery.Controller
	scheduler  *scheduler.Scheduler
	stats      *stats.RunStatistics
	locals     []*worker.Local
	closers    []func() error
	monitor    sync.WaitGroup
	stop       context.CancelFunc
}

// NewLocalSession creates a Session backed by in-process workers
func NewLocalSession(opts ...Option) (*Session, error) {
	conf := defaultConfig()
	for _, opt := range opts {
		opt(conf)
	}
	if err := conf.ensureDefaults(); err != nil {
		return nil, err
	}
	network := worker.NewNetwork()
	locals := make([]*worker.Local, conf.Workers)
	workers := make([]Worker, conf.Workers)
	for i := range locals {
		l, err := network.NewLocal(fmt.Sprintf("local-%d", i), conf.TaskSlots, &pstore.Config{MemoryBudget: conf.CacheMemory})
		if err != nil {
			return nil, err
		}
		locals[i] = l
		workers[i] = l
	}
	s, err := newSession(conf, workers)
	if err != nil {
		return nil, err
	}
	s.locals = locals
	return s, nil
}

// NewSessionWithWorkers creates a Session backed by the given workers. The Workers option is ignored.
func NewSessionWithWorkers(workers []Worker, opts ...Option) (*Session, error) {
	conf := defaultConfig()
	for _, opt := range opts {
		opt(conf)
	}
	if err := conf.ensureDefaults(); err != nil {
		return nil, err
	}
	return newSession(conf, workers)
}

func newSession(conf *Config, workers []Worker) (*Session, error) {
	if len(workers) == 0 {
		return nil, errors.NoWorkersError{}
	}
	level, _ := logging.ParseLevel(conf.LogLevel)
	logging.SetLevel(level)

	health := recovery.NewHealth(&recovery.HealthConfig{
		HeartbeatInterval: conf.HeartbeatInterval,
		LostTimeout:       conf.HeartbeatTimeout,
	})
	pool := executor.NewPool(&executor.PoolConfig{MaxAttempts: conf.MaxTaskAttempts}, health)
	for _, w := range workers {
		pool.AddWorker(w)
	}
	tracker := shuffle.NewTracker()
	controller := recovery.NewController(health, tracker, func(ctx context.Context, id string) error {
		w, ok := pool.Worker(id)
		if !ok {
			return errors.WorkerUnreachableError{Worker: id}
		}
		return w.Heartbeat(ctx)
	}, conf.MaxRecoveries)
	graph := lineage.NewGraph()
	s := &Session{
		conf:       conf,
		cancels:    make(map[int]context.CancelFunc),
		graph:      graph,
		pool:       pool,
		health:     health,
		tracker:    tracker,
		controller: controller,
		scheduler:  scheduler.New(&scheduler.Config{MaxStageAttempts: conf.MaxStageAttempts}, graph, pool, tracker, controller),
		stats:      stats.NewRunStatistics(),
		closers:    append([]func() error(nil), conf.closers...),
	}
	s.scheduler.AddListener(s.stats)
	if conf.ProgressBar {
		s.scheduler.AddListener(newProgressListener())
	}
	for _, l := range conf.listeners {
		s.scheduler.AddListener(l)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.monitor.Add(1)
	go func() {
		defer s.monitor.Done()
		health.Monitor(ctx, pool.Pingers)
	}()
	log.Debugf("Session started with %d worker(s)", len(workers))
	return s, nil
}

// State returns the lifecycle state of this Session
func (s *Session) State() SessionState {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Close cancels running jobs, stops monitoring workers and releases them. Closing a closed
// Session is a no-op.
func (s *Session) Close() error {
	s.lock.Lock()
	if s.state == SessionClosed {
		s.lock.Unlock()
		return nil
	}
	s.state = SessionClosed
	for _, cancel := range s.cancels {
		cancel()
	}
	s.lock.Unlock()

	s.jobs.Wait()
	s.stop()
	s.monitor.Wait()
	var merr *multierror.Error
	for _, closer := range s.closers {
		if err := closer(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if merr != nil {
		merr.ErrorFormat = util.FormatMultiError
	}
	log.Debug("Session closed")
	return merr.ErrorOrNil()
}

// Stats returns statistics about the jobs run by this Session
func (s *Session) Stats() RuntimeStatistics {
	return s.stats
}

// Workers returns the ids of this Session's workers
func (s *Session) Workers() []string {
	ws := s.pool.Workers()
	ids := make([]string, len(ws))
	for i, w := range ws {
		ids[i] = w.ID()
	}
	return ids
}

// KillWorker simulates the loss of an in-process worker, dropping everything it holds.
// It fails for workers which are not in-process.
func (s *Session) KillWorker(id string) error {
	for _, l := range s.locals {
		if l.ID() == id {
			l.Kill()
			return nil
		}
	}
	return fmt.Errorf("Worker %s is not an in-process worker", id)
}

// beginJob registers a running job, deriving a context which Close cancels
func (s *Session) beginJob(ctx context.Context) (context.Context, func(), error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.state == SessionClosed {
		return nil, nil, errors.SessionClosedError{}
	}
	s.state = SessionActive
	jctx, cancel := context.WithCancel(ctx)
	id := s.nextJob
	s.nextJob++
	s.cancels[id] = cancel
	s.jobs.Add(1)
	return jctx, func() {
		cancel()
		s.lock.Lock()
		delete(s.cancels, id)
		s.lock.Unlock()
		s.jobs.Done()
	}, nil
}

// runJob runs a single action against a Dataset
func (s *Session) runJob(ctx context.Context, d *Dataset, action *executor.ActionSpec, partitions []int) ([]*executor.TaskResult, error) {
	jctx, done, err := s.beginJob(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return s.scheduler.RunJob(jctx, &scheduler.Job{Target: d.node.ID, Action: action, Partitions: partitions})
}

func (s *Session) checkOpen() error {
	if s.State() == SessionClosed {
		return errors.SessionClosedError{}
	}
	return nil
}

func (s *Session) build(t types.Transformation, parents ...*Dataset) (*Dataset, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	ids := make([]types.DatasetID, len(parents))
	for i, p := range parents {
		if p.session != s {
			return nil, errors.PlanningError{Op: string(t.Kind), Reason: fmt.Sprintf("Dataset %d belongs to another Session", p.node.ID)}
		}
		ids[i] = p.node.ID
	}
	n, err := s.graph.Build(t, ids...)
	if err != nil {
		return nil, err
	}
	return &Dataset{session: s, node: n}, nil
}

// defaultParallelism is the number of partitions of parallelized collections when unspecified
func (s *Session) defaultParallelism() int {
	if s.conf.DefaultParallelism > 0 {
		return s.conf.DefaultParallelism
	}
	total := 0
	for _, w := range s.pool.Workers() {
		total += w.Slots()
	}
	if total < 2 {
		return 2
	}
	return total
}

// FromSource creates a Dataset from a described source. Connectors provide helpers to build
// descriptors (see the datasource packages).
func (s *Session) FromSource(desc *types.SourceDescriptor) (*Dataset, error) {
	return s.build(types.Transformation{Kind: types.SourceKind, Source: desc})
}

// Parallelize creates a Dataset from an in-memory collection of elements of type elem, divided
// into numSlices partitions. numSlices <= 0 selects the default parallelism.
func (s *Session) Parallelize(elem types.ElemType, data []types.Record, numSlices int) (*Dataset, error) {
	if numSlices <= 0 {
		numSlices = s.defaultParallelism()
	}
	desc, err := memory.Parallelize(elem, data, numSlices)
	if err != nil {
		return nil, err
	}
	return s.FromSource(desc)
}

// TextFile creates a Dataset of the lines of the files matching a glob, one partition per
// file. Paths starting with s3:// are read from S3.
func (s *Session) TextFile(glob string) (*Dataset, error) {
	desc, err := file.TextFile(glob)
	if err != nil {
		return nil, err
	}
	return s.FromSource(desc)
}

// JSONLines creates a Dataset containing one value per line of the JSON Lines files matching a
// glob. field is a gjson path, and its values are converted to elem.
func (s *Session) JSONLines(glob string, field string, elem types.ElemType) (*Dataset, error) {
	desc, err := jsonl.JSONLines(glob, elem, &jsonl.Conf{Field: field})
	if err != nil {
		return nil, err
	}
	return s.FromSource(desc)
}
