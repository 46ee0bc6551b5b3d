package shuffle

import (
	"sync"

	"github.com/go-sif/rdd/types"
)

// Tracker records, on the driver, which worker holds the output of each shuffle mapper
type Tracker struct {
	lock    sync.RWMutex
	outputs map[types.ShuffleID][]string
}

// NewTracker creates an empty Tracker
func NewTracker() *Tracker {
	return &Tracker{outputs: make(map[types.ShuffleID][]string)}
}

// Register declares a shuffle with the given number of mappers. Registering a known shuffle is a no-op.
func (t *Tracker) Register(id types.ShuffleID, numMappers int) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if _, ok := t.outputs[id]; !ok {
		t.outputs[id] = make([]string, numMappers)
	}
}

// RegisterOutput records that a worker holds the output of a mapper
func (t *Tracker) RegisterOutput(id types.ShuffleID, mapper int, worker string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if locs, ok := t.outputs[id]; ok && mapper < len(locs) {
		locs[mapper] = worker
	}
}

// RemoveOutput forgets the output of a single mapper
func (t *Tracker) RemoveOutput(id types.ShuffleID, mapper int) {
	t.RegisterOutput(id, mapper, "")
}

// Locations returns the worker holding the output of each mapper ("" if missing)
func (t *Tracker) Locations(id types.ShuffleID) []string {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return append([]string(nil), t.outputs[id]...)
}

// Missing returns the mappers whose output is unavailable, in ascending order
func (t *Tracker) Missing(id types.ShuffleID) []int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	var missing []int
	for i, w := range t.outputs[id] {
		if len(w) == 0 {
			missing = append(missing, i)
		}
	}
	return missing
}

// RemoveWorker forgets every output held by a worker, returning the affected shuffles
func (t *Tracker) RemoveWorker(worker string) []types.ShuffleID {
	t.lock.Lock()
	defer t.lock.Unlock()
	var affected []types.ShuffleID
	for id, locs := range t.outputs {
		hit := false
		for i, w := range locs {
			if w == worker {
				locs[i] = ""
				hit = true
			}
		}
		if hit {
			affected = append(affected, id)
		}
	}
	return affected
}

// Unregister forgets a shuffle entirely
func (t *Tracker) Unregister(id types.ShuffleID) {
	t.lock.Lock()
	defer t.lock.Unlock()
	delete(t.outputs, id)
}
