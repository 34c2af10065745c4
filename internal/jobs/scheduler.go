package jobs

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrJobNotFound is returned by RunNow for an unregistered job name
var ErrJobNotFound = errors.New("job not found")

// Job interface that all scheduled jobs must implement
type Job interface {
	Run(ctx context.Context) error
	GetNextRunTime() time.Time
}

// JobScheduler runs each registered job on its own timer and reschedules
// it after every run
type JobScheduler struct {
	jobs    map[string]Job
	timers  map[string]*time.Timer
	results map[string]runResult
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

type runResult struct {
	at  time.Time
	err error
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler() *JobScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		jobs:    make(map[string]Job),
		timers:  make(map[string]*time.Timer),
		results: make(map[string]runResult),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a job to the scheduler. Jobs registered after Start are
// scheduled immediately.
func (s *JobScheduler) Register(name string, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[name] = job
	log.Printf("✅ [SCHEDULER] Registered job: %s", name)

	if s.running {
		s.scheduleJob(name, job)
	}
}

// Start begins running all registered jobs
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	log.Printf("🚀 [SCHEDULER] Starting job scheduler with %d jobs", len(s.jobs))

	for name, job := range s.jobs {
		s.scheduleJob(name, job)
	}
}

// scheduleJob arms the timer for the job's next run. Callers hold s.mu.
func (s *JobScheduler) scheduleJob(name string, job Job) {
	duration := time.Until(job.GetNextRunTime())
	if duration < 0 {
		duration = 0
	}

	if old, ok := s.timers[name]; ok {
		old.Stop()
	}
	s.timers[name] = time.AfterFunc(duration, func() {
		s.runJob(name, job)
	})
}

// runJob executes a job and reschedules it
func (s *JobScheduler) runJob(name string, job Job) {
	s.wg.Add(1)
	defer s.wg.Done()

	startTime := time.Now()
	err := job.Run(s.ctx)
	if err != nil {
		log.Printf("❌ [SCHEDULER] Job '%s' failed after %v: %v", name, time.Since(startTime), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[name] = runResult{at: startTime, err: err}
	if s.running {
		s.scheduleJob(name, job)
	}
}

// Stop gracefully stops all jobs
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.running = false

	for _, timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[string]*time.Timer)

	s.mu.Unlock()

	// Cancel context and wait for running jobs
	s.cancel()
	s.wg.Wait()

	log.Println("✅ [SCHEDULER] Job scheduler stopped")
}

// RunNow immediately runs a specific job outside its schedule
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return ErrJobNotFound
	}

	log.Printf("🚀 [SCHEDULER] Running job '%s' immediately", name)
	err := job.Run(s.ctx)

	s.mu.Lock()
	s.results[name] = runResult{at: time.Now(), err: err}
	s.mu.Unlock()
	return err
}

// GetStatus returns the status of all jobs
func (s *JobScheduler) GetStatus() map[string]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make(map[string]JobStatus, len(s.jobs))
	for name, job := range s.jobs {
		st := JobStatus{
			Name:        name,
			NextRunTime: job.GetNextRunTime(),
			Registered:  true,
		}
		if result, ok := s.results[name]; ok {
			lastRun := result.at
			st.LastRunTime = &lastRun
			if result.err != nil {
				st.LastError = result.err.Error()
			}
		}
		status[name] = st
	}

	return status
}

// JobStatus represents the status of a job
type JobStatus struct {
	Name        string     `json:"name"`
	NextRunTime time.Time  `json:"next_run_time"`
	LastRunTime *time.Time `json:"last_run_time,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Registered  bool       `json:"registered"`
}
