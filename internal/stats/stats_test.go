package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunStatistics(t *testing.T) {
	rs := NewRunStatistics()
	rs.JobStarted("a", 2)
	rs.StageSubmitted("a", 0, 2)
	rs.TaskEnded("a", 0, 0, "w1", 10*time.Millisecond, nil)
	rs.TaskEnded("a", 0, 1, "w2", 20*time.Millisecond, nil)
	rs.StageCompleted("a", 0, nil)
	rs.StageSubmitted("a", 1, 1)
	rs.TaskEnded("a", 1, 0, "", 0, fmt.Errorf("boom"))
	rs.StageCompleted("a", 1, fmt.Errorf("boom"))
	rs.JobEnded("a", fmt.Errorf("boom"))

	jobs, failed := rs.GetNumJobs()
	require.Equal(t, int64(1), jobs)
	require.Equal(t, int64(1), failed)
	stages, failed := rs.GetNumStages()
	require.Equal(t, int64(2), stages)
	require.Equal(t, int64(1), failed)
	tasks, failed := rs.GetNumTasks()
	require.Equal(t, int64(2), tasks)
	require.Equal(t, int64(1), failed)
	require.Equal(t, map[string]int64{"w1": 1, "w2": 1}, rs.GetTasksPerWorker())
	require.Equal(t, 6*time.Millisecond, rs.GetCurrentTaskProcessingTime())
	require.Contains(t, rs.String(), "Jobs: 1 (1 failed)")
	require.False(t, rs.GetStartTime().IsZero())
}
