package monitor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"jobsupervisor/internal/eventbus"
	"jobsupervisor/internal/job"
	"jobsupervisor/internal/metrics"
)

// Scheduler runs every job's Monitor on a shared, bounded worker pool, the
// way a node-local scheduler with a fixed thread count would. Ticks for
// different jobs run concurrently, up to poolSize in flight; ticks for
// the same job never overlap because each job has exactly one Monitor
// goroutine driving its own fixed-delay loop.
type Scheduler struct {
	checker ProcessChecker
	bus     *eventbus.Bus
	metrics *metrics.Sink
	log     *zap.Logger

	sem chan struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewScheduler returns a Scheduler bounding concurrent monitor ticks to
// poolSize. A poolSize of 0 or less is treated as unbounded.
func NewScheduler(poolSize int, checker ProcessChecker, bus *eventbus.Bus, sink *metrics.Sink, log *zap.Logger) *Scheduler {
	var sem chan struct{}
	if poolSize > 0 {
		sem = make(chan struct{}, poolSize)
	}
	return &Scheduler{
		checker: checker,
		bus:     bus,
		metrics: sink,
		log:     log,
		sem:     sem,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start creates and runs a Monitor for exec.JobID, returning an error if
// a monitor for that job ID is already running. At most one monitor ever
// exists per job ID at a time.
func (s *Scheduler) Start(parent context.Context, exec job.Execution) error {
	s.mu.Lock()
	if _, exists := s.cancels[exec.JobID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("monitor already running for job %q", exec.JobID)
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancels[exec.JobID] = cancel
	s.mu.Unlock()

	mon := New(exec, s.checker, s.bus, s.metrics, s.log)

	go func() {
		defer s.remove(exec.JobID)
		s.acquire()
		defer s.release()
		mon.Run(ctx)
	}()

	return nil
}

// Stop cancels the monitor for jobID, if one is running. It is
// idempotent: stopping an already-stopped or unknown job ID is a no-op.
func (s *Scheduler) Stop(jobID string) {
	s.mu.Lock()
	cancel, ok := s.cancels[jobID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Running reports whether a monitor is currently scheduled for jobID.
func (s *Scheduler) Running(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cancels[jobID]
	return ok
}

func (s *Scheduler) remove(jobID string) {
	s.mu.Lock()
	delete(s.cancels, jobID)
	s.mu.Unlock()
}

// acquire/release bound how many monitors are actively ticking at once.
// They intentionally hold the pool slot for the monitor's entire
// lifetime (not just a single tick): the pool models a fixed number of
// node-local poller threads rather than a per-tick rate limit.
func (s *Scheduler) acquire() {
	if s.sem != nil {
		s.sem <- struct{}{}
	}
}

func (s *Scheduler) release() {
	if s.sem != nil {
		<-s.sem
	}
}
