package stats

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const statisticRollingWindows = 5

// RunStatistics contains statistics about the jobs run by a Session. It is notified by the
// scheduler of every job, stage and task.
type RunStatistics struct {
	lock                   sync.Mutex
	started                bool
	startTime              time.Time
	jobsRun                int64
	jobsFailed             int64
	stagesRun              int64
	stagesFailed           int64
	tasksSucceeded         int64
	tasksFailed            int64
	workers                map[string]int64 // tasks run per worker
	recentTaskRuntimes     []int64          // for rolling average of recent task processing times
	recentTaskRuntimesHead int
	stageStartTimes        map[string]time.Time
	lastStageRuntime       time.Duration
	lastJobRuntime         time.Duration
	jobStartTimes          map[string]time.Time
}

// NewRunStatistics creates an empty RunStatistics
func NewRunStatistics() *RunStatistics {
	return &RunStatistics{
		workers:            make(map[string]int64),
		recentTaskRuntimes: make([]int64, statisticRollingWindows),
		stageStartTimes:    make(map[string]time.Time),
		jobStartTimes:      make(map[string]time.Time),
	}
}

func stageKey(jobID string, stageID int) string {
	return fmt.Sprintf("%s/%d", jobID, stageID)
}

// JobStarted tracks the beginning of a job, and of statistics tracking if it hasn't been started already
func (rs *RunStatistics) JobStarted(jobID string, numStages int) {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	now := time.Now()
	if !rs.started {
		rs.started = true
		rs.startTime = now
	}
	rs.jobStartTimes[jobID] = now
}

// StageSubmitted tracks the beginning of a stage
func (rs *RunStatistics) StageSubmitted(jobID string, stageID int, numTasks int) {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	rs.stageStartTimes[stageKey(jobID, stageID)] = time.Now()
}

// TaskEnded tracks the end of a task attempt sequence
func (rs *RunStatistics) TaskEnded(jobID string, stageID int, partition int, worker string, duration time.Duration, err error) {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	if err != nil {
		rs.tasksFailed++
		return
	}
	rs.tasksSucceeded++
	rs.workers[worker]++
	rs.recentTaskRuntimes[rs.recentTaskRuntimesHead] = duration.Nanoseconds()
	rs.recentTaskRuntimesHead = (rs.recentTaskRuntimesHead + 1) % len(rs.recentTaskRuntimes)
}

// StageCompleted tracks the end of a stage
func (rs *RunStatistics) StageCompleted(jobID string, stageID int, err error) {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	key := stageKey(jobID, stageID)
	if start, ok := rs.stageStartTimes[key]; ok {
		rs.lastStageRuntime = time.Since(start)
		delete(rs.stageStartTimes, key)
	}
	rs.stagesRun++
	if err != nil {
		rs.stagesFailed++
	}
}

// JobEnded tracks the end of a job
func (rs *RunStatistics) JobEnded(jobID string, err error) {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	if start, ok := rs.jobStartTimes[jobID]; ok {
		rs.lastJobRuntime = time.Since(start)
		delete(rs.jobStartTimes, jobID)
	}
	rs.jobsRun++
	if err != nil {
		rs.jobsFailed++
	}
}

// GetStartTime returns the start time of the first job
func (rs *RunStatistics) GetStartTime() time.Time {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	return rs.startTime
}

// GetNumJobs returns the number of jobs run so far, and how many of them failed
func (rs *RunStatistics) GetNumJobs() (run int64, failed int64) {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	return rs.jobsRun, rs.jobsFailed
}

// GetNumStages returns the number of stages run so far, and how many of them failed
func (rs *RunStatistics) GetNumStages() (run int64, failed int64) {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	return rs.stagesRun, rs.stagesFailed
}

// GetNumTasks returns the number of tasks which succeeded, and which failed, so far
func (rs *RunStatistics) GetNumTasks() (succeeded int64, failed int64) {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	return rs.tasksSucceeded, rs.tasksFailed
}

// GetTasksPerWorker returns the number of successful tasks run by each worker
func (rs *RunStatistics) GetTasksPerWorker() map[string]int64 {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	res := make(map[string]int64, len(rs.workers))
	for w, n := range rs.workers {
		res[w] = n
	}
	return res
}

// GetCurrentTaskProcessingTime returns a rolling average of task processing time
func (rs *RunStatistics) GetCurrentTaskProcessingTime() time.Duration {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	var total int64
	for _, d := range rs.recentTaskRuntimes {
		total += d
	}
	return time.Duration(total / statisticRollingWindows)
}

// String summarizes these statistics
func (rs *RunStatistics) String() string {
	jobs, failedJobs := rs.GetNumJobs()
	stages, failedStages := rs.GetNumStages()
	tasks, failedTasks := rs.GetNumTasks()
	avg := rs.GetCurrentTaskProcessingTime()
	rs.lock.Lock()
	defer rs.lock.Unlock()
	var b strings.Builder
	if rs.started {
		fmt.Fprintf(&b, "Started %s\n", humanize.Time(rs.startTime))
	}
	fmt.Fprintf(&b, "Jobs: %s (%s failed), last took %s\n", humanize.Comma(jobs), humanize.Comma(failedJobs), rs.lastJobRuntime)
	fmt.Fprintf(&b, "Stages: %s (%s failed), last took %s\n", humanize.Comma(stages), humanize.Comma(failedStages), rs.lastStageRuntime)
	fmt.Fprintf(&b, "Tasks: %s (%s failed), recent average %s\n", humanize.Comma(tasks), humanize.Comma(failedTasks), avg)
	return b.String()
}
