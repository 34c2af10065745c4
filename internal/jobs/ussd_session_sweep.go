package jobs

import (
	"context"
	"fmt"
	"time"
)

// SessionSweeper removes expired USSD sessions
type SessionSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// USSDSessionSweepJob evicts abandoned USSD dialogs so that idle sessions do
// not accumulate between gateway turns
type USSDSessionSweepJob struct {
	store    SessionSweeper
	interval time.Duration
	now      func() time.Time
}

// NewUSSDSessionSweepJob creates a sweep job running every interval
func NewUSSDSessionSweepJob(store SessionSweeper, interval time.Duration) *USSDSessionSweepJob {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &USSDSessionSweepJob{
		store:    store,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps the store once
func (j *USSDSessionSweepJob) Run(ctx context.Context) error {
	if _, err := j.store.Sweep(ctx); err != nil {
		return fmt.Errorf("failed to sweep ussd sessions: %w", err)
	}
	return nil
}

// GetNextRunTime returns one interval from now
func (j *USSDSessionSweepJob) GetNextRunTime() time.Time {
	return j.now().Add(j.interval)
}
