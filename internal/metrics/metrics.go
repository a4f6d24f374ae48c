// Package metrics is a minimal named-counter sink for the pipeline.
//
// Built on sync/atomic rather than a third-party metrics registry: the
// pipeline only needs a handful of monotonic counters, and a future
// swap to a real registry only has to change this one file.
package metrics

import (
	"sync"
	"sync/atomic"
)

// Names of every counter the pipeline increments.
const (
	SuccessfulStatusCheck      = "successfulStatusCheck"
	UnsuccessfulStatusCheck    = "unsuccessfulStatusCheck"
	Timeout                    = "timeout"
	Finished                   = "finished"
	StdOutTooLarge             = "stdOutTooLarge"
	StdErrTooLarge             = "stdErrTooLarge"
	EmailSuccess               = "email.success"
	EmailFailure               = "email.failure"
	ArchivalFailure            = "archivalFailure"
	DoneFileProcessingFailure  = "doneFileProcessingFailure"
	FinalStatusUpdateFailure   = "finalStatusUpdateFailure"
	ProcessGroupCleanupFailure = "processGroupCleanupFailure"
	ArchiveFileDeletionFailure = "archiveFileDeletionFailure"
	DeleteDependenciesFailure  = "deleteDependenciesFailure"
)

// Sink is a concurrency-safe set of named monotonic counters.
type Sink struct {
	mu       sync.RWMutex
	counters map[string]*int64
}

// NewSink returns a Sink with a zeroed counter pre-registered for every
// name passed in, so Snapshot always reports a stable key set.
func NewSink(names ...string) *Sink {
	s := &Sink{counters: make(map[string]*int64, len(names))}
	for _, n := range names {
		var v int64
		s.counters[n] = &v
	}
	return s
}

// Bump increments the named counter by one, registering it on first use.
func (s *Sink) Bump(name string) {
	s.Add(name, 1)
}

// Add increments the named counter by delta, registering it on first use.
func (s *Sink) Add(name string, delta int64) {
	s.mu.RLock()
	ctr, ok := s.counters[name]
	s.mu.RUnlock()
	if !ok {
		// Counters are pre-registered by NewSink in the common case; this
		// path only matters for ad-hoc names used in tests.
		s.mu.Lock()
		ctr, ok = s.counters[name]
		if !ok {
			var v int64
			ctr = &v
			s.counters[name] = ctr
		}
		s.mu.Unlock()
	}
	atomic.AddInt64(ctr, delta)
}

// Get returns the current value of the named counter.
func (s *Sink) Get(name string) int64 {
	s.mu.RLock()
	ctr, ok := s.counters[name]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(ctr)
}

// Snapshot returns a point-in-time copy of every counter.
func (s *Sink) Snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.counters))
	for name, ctr := range s.counters {
		out[name] = atomic.LoadInt64(ctr)
	}
	return out
}

// AllNames is the full stable set of counter names the pipeline
// increments, suitable for seeding NewSink.
func AllNames() []string {
	return []string{
		SuccessfulStatusCheck, UnsuccessfulStatusCheck, Timeout, Finished,
		StdOutTooLarge, StdErrTooLarge, EmailSuccess, EmailFailure,
		ArchivalFailure, DoneFileProcessingFailure, FinalStatusUpdateFailure,
		ProcessGroupCleanupFailure, ArchiveFileDeletionFailure, DeleteDependenciesFailure,
	}
}
