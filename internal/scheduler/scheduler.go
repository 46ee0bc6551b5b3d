package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/internal/executor"
	"github.com/go-sif/rdd/internal/lineage"
	"github.com/go-sif/rdd/internal/recovery"
	"github.com/go-sif/rdd/internal/shuffle"
	"github.com/go-sif/rdd/internal/util"
	"github.com/go-sif/rdd/types"
	uuid "github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config configures a Scheduler
type Config struct {
	MaxStageAttempts int // attempts to run a Job's stages when shuffle outputs are lost
}

// Job is a single action against a Dataset
type Job struct {
	ID         string
	Target     types.DatasetID
	Action     *executor.ActionSpec
	Partitions []int // partitions of the target to compute, nil for all
}

// Scheduler compiles Jobs into Stages and runs them on a Pool
type Scheduler struct {
	conf       *Config
	graph      *lineage.Graph
	pool       *executor.Pool
	tracker    *shuffle.Tracker
	controller *recovery.Controller
	lock       sync.RWMutex
	listeners  listeners
}

// New creates a Scheduler
func New(conf *Config, graph *lineage.Graph, pool *executor.Pool, tracker *shuffle.Tracker, controller *recovery.Controller) *Scheduler {
	if conf.MaxStageAttempts <= 0 {
		conf.MaxStageAttempts = 4
	}
	return &Scheduler{
		conf:       conf,
		graph:      graph,
		pool:       pool,
		tracker:    tracker,
		controller: controller,
	}
}

// AddListener registers a Listener for every subsequent Job
func (s *Scheduler) AddListener(l Listener) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Scheduler) currentListeners() listeners {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append(listeners(nil), s.listeners...)
}

// RunJob runs a Job to completion, returning one result per requested partition, in order.
// Planning errors are returned before any task runs. Any other failure is reported as an
// errors.JobFailedError, and partial results are discarded.
func (s *Scheduler) RunJob(ctx context.Context, job *Job) ([]*executor.TaskResult, error) {
	if job.Action == nil {
		return nil, errors.PlanningError{Op: "job", Reason: "no action given"}
	}
	stages, err := Plan(s.graph, job.Target)
	if err != nil {
		return nil, err
	}
	result := stages[len(stages)-1]
	partitions := job.Partitions
	if partitions == nil {
		partitions = make([]int, result.NumTasks)
		for i := range partitions {
			partitions[i] = i
		}
	}
	for _, p := range partitions {
		if p < 0 || p >= result.NumTasks {
			return nil, errors.PlanningError{Op: string(job.Action.Kind), Reason: fmt.Sprintf("partition %d does not exist (%d partitions)", p, result.NumTasks)}
		}
	}
	if len(job.ID) == 0 {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("Unable to generate job id: %w", err)
		}
		job.ID = id.String()
	}
	for _, st := range stages {
		if st.IsShuffleMap() {
			s.tracker.Register(*st.Shuffle, st.NumTasks)
		}
	}
	logger := log.WithField("job", job.ID)
	logger.Debugf("Running %s of Dataset %d in %d stage(s):\n%s", job.Action.Kind, job.Target, len(stages), Describe(stages))
	ls := s.currentListeners()
	ls.jobStarted(job.ID, len(stages))

	results := make(map[int]*executor.TaskResult, len(partitions))
	recoveries := make(recovery.Recoveries)
	for attempt := 1; ; attempt++ {
		err = s.runStages(ctx, job, stages, partitions, results, ls)
		if err == nil || ctx.Err() != nil {
			break
		}
		failure, ok := errors.AsFetchFailed(err)
		if !ok {
			break
		}
		if attempt >= s.conf.MaxStageAttempts {
			err = fmt.Errorf("Stages failed %d times: %w", attempt, err)
			break
		}
		id, ok := findShuffle(stages, failure.Shuffle)
		if !ok || s.controller == nil {
			break
		}
		if rerr := s.controller.HandleFetchFailure(ctx, recoveries, id, failure); rerr != nil {
			err = rerr
			break
		}
		logger.Warnf("Resubmitting stages after a fetch failure (attempt %d): %v", attempt, failure)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !stderrors.Is(err, ctxErr) {
			err = ctxErr
		}
		jobErr := errors.JobFailedError{JobID: job.ID, Lineage: s.graph.Chain(job.Target), Err: err}
		ls.jobEnded(job.ID, jobErr)
		return nil, jobErr
	}
	out := make([]*executor.TaskResult, len(partitions))
	for i, p := range partitions {
		out[i] = results[p]
	}
	ls.jobEnded(job.ID, nil)
	return out, nil
}

func findShuffle(stages []*Stage, name string) (types.ShuffleID, bool) {
	for _, st := range stages {
		for _, id := range st.Inputs {
			if id.String() == name {
				return id, true
			}
		}
	}
	return types.ShuffleID{}, false
}

// needed returns the stages which must run: the result stage, and every shuffle map stage
// feeding a needed stage which has missing outputs
func (s *Scheduler) needed(stages []*Stage) map[*Stage]bool {
	needed := map[*Stage]bool{stages[len(stages)-1]: true}
	for i := len(stages) - 1; i >= 0; i-- {
		st := stages[i]
		if !needed[st] {
			continue
		}
		if st.IsShuffleMap() && len(s.tracker.Missing(*st.Shuffle)) == 0 {
			needed[st] = false
			continue
		}
		for _, p := range st.Parents {
			needed[p] = true
		}
	}
	return needed
}

// runStages runs every needed stage as soon as its parents have completed
func (s *Scheduler) runStages(ctx context.Context, job *Job, stages []*Stage, partitions []int, results map[int]*executor.TaskResult, ls listeners) error {
	needed := s.needed(stages)
	done := make(map[*Stage]chan struct{}, len(stages))
	for _, st := range stages {
		done[st] = make(chan struct{})
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, st := range stages {
		st := st
		if !needed[st] {
			close(done[st])
			continue
		}
		g.Go(func() error {
			for _, p := range st.Parents {
				select {
				case <-done[p]:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if err := s.runStage(gctx, job, st, partitions, results, ls); err != nil {
				return err
			}
			close(done[st])
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) runStage(ctx context.Context, job *Job, st *Stage, partitions []int, results map[int]*executor.TaskResult, ls listeners) error {
	var parts []int
	if st.IsShuffleMap() {
		parts = s.tracker.Missing(*st.Shuffle)
	} else {
		for _, p := range partitions {
			if _, ok := results[p]; !ok {
				parts = append(parts, p)
			}
		}
	}
	if len(parts) == 0 {
		return nil
	}
	nodes, persisted, err := s.graph.Snapshot(st.Target.ID)
	if err != nil {
		return err
	}
	inputs := make([]executor.ShuffleInput, len(st.Inputs))
	for i, id := range st.Inputs {
		inputs[i] = executor.ShuffleInput{Shuffle: id, Locations: s.tracker.Locations(id)}
	}
	peers := s.pool.Peers()
	logger := log.WithFields(log.Fields{"job": job.ID, "stage": st.ID})
	logger.Debugf("Submitting %d task(s) for %s", len(parts), st)
	ls.stageSubmitted(job.ID, st.ID, len(parts))
	start := time.Now()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	handles := make([]*executor.Handle, len(parts))
	for i, p := range parts {
		task := &executor.Task{
			JobID:     job.ID,
			StageID:   st.ID,
			Partition: p,
			Target:    st.Target.ID,
			Lineage:   lineage.ForPartition(nodes, st.Target.ID, p),
			Persisted: persisted,
			Inputs:    inputs,
			Peers:     peers,
		}
		if st.IsShuffleMap() {
			task.ShuffleWrite = shuffleWrite(st)
		} else {
			task.Action = job.Action
		}
		h := s.pool.Submit(sctx, task)
		handles[i] = h
		// one failed task fails the stage, so the rest are cancelled
		go func() {
			<-h.Done()
			if h.State() == executor.Failed {
				cancel()
			}
		}()
	}

	var merr *multierror.Error
	var fetchFailure error
	for i, h := range handles {
		res, err := h.Await()
		var worker string
		var duration time.Duration
		if res != nil {
			worker, duration = res.Worker, res.Duration
		}
		ls.taskEnded(job.ID, st.ID, parts[i], worker, duration, err)
		switch {
		case err == nil && st.IsShuffleMap():
			if s.controller != nil {
				s.controller.RegisterOutput(*st.Shuffle, parts[i], res.Worker)
			} else {
				s.tracker.RegisterOutput(*st.Shuffle, parts[i], res.Worker)
			}
		case err == nil:
			results[parts[i]] = res
		case stderrors.Is(err, context.Canceled):
		default:
			if _, ok := errors.AsFetchFailed(err); ok && fetchFailure == nil {
				fetchFailure = err
			}
			merr = multierror.Append(merr, err)
		}
	}
	switch {
	case fetchFailure != nil:
		err = fetchFailure
	case merr != nil && len(merr.Errors) == 1:
		err = merr.Errors[0]
	case merr != nil:
		merr.ErrorFormat = util.FormatMultiError
		err = merr
	default:
		err = ctx.Err()
	}
	ls.stageCompleted(job.ID, st.ID, err)
	if err != nil {
		return err
	}
	logger.Debugf("Finished %s in %s", st, time.Since(start))
	return nil
}

func shuffleWrite(st *Stage) *executor.ShuffleWriteSpec {
	kind := st.Wide.Transform.Kind
	return &executor.ShuffleWriteSpec{
		Shuffle:    *st.Shuffle,
		NumTargets: st.Wide.NumPartitions,
		RoundRobin: kind == types.RepartitionKind,
		// only membership of the second parent of a subtraction matters
		Distinct: kind == types.DistinctKind || kind == types.IntersectionKind || (kind == types.SubtractKind && st.Shuffle.Parent == 1),
	}
}
