package rdd

import "time"

// RuntimeStatistics facilitates the retrieval of statistics about the jobs run by a Session
type RuntimeStatistics interface {
	// GetStartTime returns the start time of the first job
	GetStartTime() time.Time
	// GetNumJobs returns the number of jobs which have been run so far, and how many of them failed
	GetNumJobs() (run int64, failed int64)
	// GetNumStages returns the number of stages which have been run so far, and how many of them failed
	GetNumStages() (run int64, failed int64)
	// GetNumTasks returns the number of tasks which have succeeded, and which have failed, so far
	GetNumTasks() (succeeded int64, failed int64)
	// GetTasksPerWorker returns the number of successful tasks run by each worker
	GetTasksPerWorker() map[string]int64
	// GetCurrentTaskProcessingTime returns a rolling average of task processing time
	GetCurrentTaskProcessingTime() time.Duration
	// String summarizes the statistics
	String() string
}
