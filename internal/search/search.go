// Package search is the external collaborator providing read access over
// persisted jobs: their record, execution snapshot, submission request,
// status, and declared application dependencies.
package search

import (
	"fmt"
	"sync"

	"jobsupervisor/internal/job"
	"jobsupervisor/internal/persistence"
)

// Service is the read API the completion handler uses to look up a job's current record, its execution snapshot, and its
// originating request.
type Service interface {
	GetJob(jobID string) (job.Record, error)
	GetJobExecution(jobID string) (job.Execution, error)
	GetJobRequest(jobID string) (job.Request, error)
	GetJobStatus(jobID string) (job.Status, error)
	GetJobApplications(jobID string) ([]string, error)
}

// InMemory is a Service backed by persistence.Store for the job record
// itself, and by in-process maps for the execution snapshot and request
// — both of which are launcher-reported, node-local data that never
// outlives the node's own process in this supervisor's scope.
type InMemory struct {
	store persistence.Store

	mu         sync.RWMutex
	executions map[string]job.Execution
	requests   map[string]job.Request
}

// NewInMemory returns an InMemory search service reading job records
// from store.
func NewInMemory(store persistence.Store) *InMemory {
	return &InMemory{
		store:      store,
		executions: make(map[string]job.Execution),
		requests:   make(map[string]job.Request),
	}
}

// RegisterExecution records exec so later GetJobExecution calls for its
// job ID succeed. Called by the launcher-facing entry point when a
// child process starts.
func (s *InMemory) RegisterExecution(exec job.Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.JobID] = exec
}

// RegisterRequest records req so later GetJobRequest calls for its job
// ID succeed.
func (s *InMemory) RegisterRequest(req job.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.JobID] = req
}

func (s *InMemory) GetJob(jobID string) (job.Record, error) {
	return s.store.Get(jobID)
}

func (s *InMemory) GetJobExecution(jobID string) (job.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[jobID]
	if !ok {
		return job.Execution{}, fmt.Errorf("search: no execution recorded for job %q", jobID)
	}
	return exec, nil
}

func (s *InMemory) GetJobRequest(jobID string) (job.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[jobID]
	if !ok {
		return job.Request{}, fmt.Errorf("search: no request recorded for job %q", jobID)
	}
	return req, nil
}

func (s *InMemory) GetJobStatus(jobID string) (job.Status, error) {
	rec, err := s.store.Get(jobID)
	if err != nil {
		return 0, err
	}
	return rec.Status, nil
}

func (s *InMemory) GetJobApplications(jobID string) ([]string, error) {
	req, err := s.GetJobRequest(jobID)
	if err != nil {
		return nil, err
	}
	return req.Applications, nil
}
