package recovery

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// WorkerState is the health of a worker, as seen by the driver
type WorkerState int

const (
	// Alive workers are scheduled normally
	Alive WorkerState = iota
	// Suspected workers have missed a heartbeat or failed a task transiently, and are only
	// scheduled when no Alive worker is available
	Suspected
	// Lost workers are excluded from scheduling, and their outputs are invalidated
	Lost
)

// String returns a textual representation of this WorkerState
func (s WorkerState) String() string {
	switch s {
	case Alive:
		return "alive"
	case Suspected:
		return "suspected"
	default:
		return "lost"
	}
}

// A Pinger can be sent heartbeats
type Pinger interface {
	ID() string
	Heartbeat(ctx context.Context) error
}

// HealthConfig configures worker health tracking
type HealthConfig struct {
	HeartbeatInterval time.Duration // how often workers are pinged
	SuspectTimeout    time.Duration // silence after which a worker is Suspected
	LostTimeout       time.Duration // silence after which a worker is Lost
}

type workerHealth struct {
	state    WorkerState
	lastSeen time.Time
}

// Health tracks the state of every worker: Alive -> Suspected -> Lost. Lost is terminal.
type Health struct {
	conf    *HealthConfig
	lock    sync.Mutex
	workers map[string]*workerHealth
	onLost  []func(worker string)
	now     func() time.Time
}

// NewHealth creates a Health tracker
func NewHealth(conf *HealthConfig) *Health {
	if conf.HeartbeatInterval <= 0 {
		conf.HeartbeatInterval = time.Second
	}
	if conf.SuspectTimeout <= 0 {
		conf.SuspectTimeout = 3 * conf.HeartbeatInterval
	}
	if conf.LostTimeout <= conf.SuspectTimeout {
		conf.LostTimeout = 2 * conf.SuspectTimeout
	}
	return &Health{conf: conf, workers: make(map[string]*workerHealth), now: time.Now}
}

// OnLost registers a callback invoked (outside of any lock) when a worker becomes Lost
func (h *Health) OnLost(fn func(worker string)) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.onLost = append(h.onLost, fn)
}

// Register starts tracking a worker as Alive
func (h *Health) Register(worker string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.workers[worker] = &workerHealth{state: Alive, lastSeen: h.now()}
}

// State returns the state of a worker. Unknown workers are Lost.
func (h *Health) State(worker string) WorkerState {
	h.lock.Lock()
	defer h.lock.Unlock()
	w, ok := h.workers[worker]
	if !ok {
		return Lost
	}
	return w.state
}

// Beat records a successful heartbeat, returning a Suspected worker to Alive
func (h *Health) Beat(worker string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	w, ok := h.workers[worker]
	if !ok || w.state == Lost {
		return
	}
	if w.state == Suspected {
		log.Infof("Worker %s is alive again", worker)
	}
	w.state = Alive
	w.lastSeen = h.now()
}

// ReportFailure records a transient failure: Alive workers become Suspected, Suspected workers become Lost
func (h *Health) ReportFailure(worker string) {
	h.lock.Lock()
	w, ok := h.workers[worker]
	if !ok || w.state == Lost {
		h.lock.Unlock()
		return
	}
	if w.state == Alive {
		w.state = Suspected
		log.Warnf("Worker %s is suspected to have failed", worker)
		h.lock.Unlock()
		return
	}
	h.lock.Unlock()
	h.MarkLost(worker)
}

// MarkLost confirms that a worker is Lost
func (h *Health) MarkLost(worker string) {
	h.lock.Lock()
	w, ok := h.workers[worker]
	if !ok || w.state == Lost {
		h.lock.Unlock()
		return
	}
	w.state = Lost
	callbacks := append([]func(string){}, h.onLost...)
	h.lock.Unlock()
	log.Errorf("Worker %s is lost", worker)
	for _, fn := range callbacks {
		fn(worker)
	}
}

// Check applies heartbeat timeouts to every worker
func (h *Health) Check() {
	var lost []string
	h.lock.Lock()
	now := h.now()
	for id, w := range h.workers {
		silence := now.Sub(w.lastSeen)
		switch {
		case w.state == Lost:
		case silence >= h.conf.LostTimeout:
			lost = append(lost, id)
		case silence >= h.conf.SuspectTimeout && w.state == Alive:
			w.state = Suspected
			log.Warnf("Worker %s missed its heartbeat", id)
		}
	}
	h.lock.Unlock()
	for _, id := range lost {
		h.MarkLost(id)
	}
}

// Monitor pings workers every HeartbeatInterval until ctx is cancelled
func (h *Health) Monitor(ctx context.Context, workers func() []Pinger) {
	ticker := time.NewTicker(h.conf.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var wg sync.WaitGroup
			for _, w := range workers() {
				if h.State(w.ID()) == Lost {
					continue
				}
				wg.Add(1)
				go func(w Pinger) {
					defer wg.Done()
					pingCtx, cancel := context.WithTimeout(ctx, h.conf.HeartbeatInterval)
					defer cancel()
					if err := w.Heartbeat(pingCtx); err == nil {
						h.Beat(w.ID())
					}
				}(w)
			}
			wg.Wait()
			h.Check()
		}
	}
}
