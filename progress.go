package rdd

import (
	"fmt"
	"sync"
	"time"

	pb "gopkg.in/cheggaaa/pb.v1"
)

// progressListener displays a progress bar for every running stage
type progressListener struct {
	lock sync.Mutex
	bars map[string]*pb.ProgressBar
}

func newProgressListener() *progressListener {
	return &progressListener{bars: make(map[string]*pb.ProgressBar)}
}

func barKey(jobID string, stageID int) string {
	return fmt.Sprintf("%s/%d", jobID, stageID)
}

func (p *progressListener) JobStarted(jobID string, numStages int) {}

func (p *progressListener) StageSubmitted(jobID string, stageID int, numTasks int) {
	bar := pb.New(numTasks).Prefix(fmt.Sprintf("Stage %d", stageID))
	bar.ShowTimeLeft = false
	bar.SetRefreshRate(200 * time.Millisecond)
	p.lock.Lock()
	p.bars[barKey(jobID, stageID)] = bar
	p.lock.Unlock()
	bar.Start()
}

func (p *progressListener) TaskEnded(jobID string, stageID int, partition int, worker string, duration time.Duration, err error) {
	p.lock.Lock()
	bar, ok := p.bars[barKey(jobID, stageID)]
	p.lock.Unlock()
	if ok && err == nil {
		bar.Increment()
	}
}

func (p *progressListener) StageCompleted(jobID string, stageID int, err error) {
	key := barKey(jobID, stageID)
	p.lock.Lock()
	bar, ok := p.bars[key]
	delete(p.bars, key)
	p.lock.Unlock()
	if ok {
		bar.Finish()
	}
}

func (p *progressListener) JobEnded(jobID string, err error) {}
