package scheduler

import (
	"time"
)

// A Listener is notified of the progress of Jobs. Listeners are invoked synchronously from
// scheduler goroutines, concurrently, and must not block.
type Listener interface {
	JobStarted(jobID string, numStages int)
	StageSubmitted(jobID string, stageID int, numTasks int)
	TaskEnded(jobID string, stageID int, partition int, worker string, duration time.Duration, err error)
	StageCompleted(jobID string, stageID int, err error)
	JobEnded(jobID string, err error)
}

type listeners []Listener

func (ls listeners) jobStarted(jobID string, numStages int) {
	for _, l := range ls {
		l.JobStarted(jobID, numStages)
	}
}

func (ls listeners) stageSubmitted(jobID string, stageID int, numTasks int) {
	for _, l := range ls {
		l.StageSubmitted(jobID, stageID, numTasks)
	}
}

func (ls listeners) taskEnded(jobID string, stageID int, partition int, worker string, duration time.Duration, err error) {
	for _, l := range ls {
		l.TaskEnded(jobID, stageID, partition, worker, duration, err)
	}
}

func (ls listeners) stageCompleted(jobID string, stageID int, err error) {
	for _, l := range ls {
		l.StageCompleted(jobID, stageID, err)
	}
}

func (ls listeners) jobEnded(jobID string, err error) {
	for _, l := range ls {
		l.JobEnded(jobID, err)
	}
}
