package recovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/internal/shuffle"
	"github.com/go-sif/rdd/types"
	log "github.com/sirupsen/logrus"
)

// Controller invalidates lost data when workers are lost or shuffle fetches fail, so that the
// scheduler recomputes it from lineage
type Controller struct {
	health        *Health
	tracker       *shuffle.Tracker
	probe         func(ctx context.Context, worker string) error
	maxRecoveries int
	lock          sync.Mutex // orders output registration against invalidation
}

// Recoveries counts how many times every map output was recovered during one Job
type Recoveries map[string]int

// NewController creates a Controller. Every worker Lost according to health has its shuffle
// outputs invalidated in tracker. probe checks whether a worker is reachable.
func NewController(health *Health, tracker *shuffle.Tracker, probe func(ctx context.Context, worker string) error, maxRecoveries int) *Controller {
	if maxRecoveries <= 0 {
		maxRecoveries = 4
	}
	c := &Controller{
		health:        health,
		tracker:       tracker,
		probe:         probe,
		maxRecoveries: maxRecoveries,
	}
	health.OnLost(c.WorkerLost)
	return c
}

// WorkerLost invalidates every shuffle output held by a worker. Its cached partitions are lost with it.
func (c *Controller) WorkerLost(worker string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	affected := c.tracker.RemoveWorker(worker)
	if len(affected) > 0 {
		log.Warnf("Invalidated outputs of worker %s in %d shuffle(s), they will be recomputed from lineage", worker, len(affected))
	}
}

// RegisterOutput records where a map output was written, unless its worker is already Lost.
// Returns false when the output was discarded.
func (c *Controller) RegisterOutput(shuffleID types.ShuffleID, mapper int, worker string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.health.State(worker) == Lost {
		log.Debugf("Discarded output of mapper %d for %s written by lost worker %s", mapper, shuffleID, worker)
		return false
	}
	c.tracker.RegisterOutput(shuffleID, mapper, worker)
	return true
}

// HandleFetchFailure invalidates the map output which could not be fetched, marking its worker
// Lost if it is unreachable. Returns an error once the output has been recovered too many times
// within the Job owning recoveries.
func (c *Controller) HandleFetchFailure(ctx context.Context, recoveries Recoveries, shuffleID types.ShuffleID, failure errors.FetchFailedError) error {
	key := fmt.Sprintf("%s/%d", failure.Shuffle, failure.Mapper)
	recoveries[key]++
	attempts := recoveries[key]
	if attempts > c.maxRecoveries {
		return fmt.Errorf("Output of mapper %d for %s was lost %d times: %w", failure.Mapper, failure.Shuffle, attempts, failure)
	}
	if len(failure.Worker) == 0 {
		// never written, or already invalidated
		return nil
	}
	if c.probe != nil && c.health.State(failure.Worker) != Lost {
		if err := c.probe(ctx, failure.Worker); err != nil {
			log.Warnf("Worker %s failed a probe after a fetch failure: %v", failure.Worker, err)
			c.health.MarkLost(failure.Worker)
			return nil
		}
	}
	log.Warnf("Recomputing output of mapper %d for %s (attempt %d)", failure.Mapper, failure.Shuffle, attempts)
	c.tracker.RemoveOutput(shuffleID, failure.Mapper)
	return nil
}
