package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/event-admin-services/common/logger"
)

// Job is one periodic sweep. Run returns how many items it removed.
type Job struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// Janitor runs sweep jobs on a fixed interval (expired sessions, idle slices)
type Janitor struct {
	interval time.Duration
	jobs     []Job
	stopChan chan bool
	stopOnce sync.Once
	log      *logger.Logger
}

// NewJanitor creates a janitor running jobs every interval
func NewJanitor(interval time.Duration, jobs ...Job) *Janitor {
	return &Janitor{
		interval: interval,
		jobs:     jobs,
		stopChan: make(chan bool),
		log:      logger.Default().With("component", "janitor"),
	}
}

// Start runs every job once, then periodically until Stop
func (j *Janitor) Start() {
	j.log.Info("janitor started", "interval", j.interval.String(), "jobs", len(j.jobs))

	j.RunOnce(context.Background())

	ticker := time.NewTicker(j.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				j.RunOnce(context.Background())
			case <-j.stopChan:
				ticker.Stop()
				j.log.Info("janitor stopped")
				return
			}
		}
	}()
}

// Stop stops the janitor; safe to call more than once
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

// RunOnce runs every job sequentially; a failing job does not stop the others.
func (j *Janitor) RunOnce(ctx context.Context) map[string]int {
	removed := make(map[string]int, len(j.jobs))
	for _, job := range j.jobs {
		n, err := job.Run(ctx)
		if err != nil {
			j.log.WithError(err).Warn("sweep failed", "job", job.Name)
			continue
		}
		removed[job.Name] = n
		if n > 0 {
			j.log.Info("sweep completed", "job", job.Name, "removed", n)
		}
	}
	return removed
}
