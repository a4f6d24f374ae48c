// Package monitor implements the per-job monitor: a fixed-delay poller
// that drives the process checker and output size guard, debounces
// transient probe errors, and emits lifecycle events onto the event
// bus.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobsupervisor/internal/errkind"
	"jobsupervisor/internal/eventbus"
	"jobsupervisor/internal/job"
	"jobsupervisor/internal/metrics"
	"jobsupervisor/internal/outputguard"
)

// MaxErrors is the number of consecutive ProbeError ticks tolerated
// before the monitor forces the job to a killed terminal state. Six
// consecutive probe errors (MaxErrors+1) trigger the escalation.
const MaxErrors = 5

// ProcessChecker is the single operation the monitor needs from the
// process checker. processcheck.Checker satisfies it; tests supply a
// fake to drive specific probe outcomes.
type ProcessChecker interface {
	CheckProcess(pid int, deadlineUnixMilli int64) error
}

// Monitor drives one job's liveness polling. A Monitor has no internal
// lock: fixed-delay scheduling guarantees its tick() is never invoked
// concurrently with itself, so errorCount is race-free by construction.
type Monitor struct {
	exec    job.Execution
	checker ProcessChecker
	bus     *eventbus.Bus
	metrics *metrics.Sink
	log     *zap.Logger

	errorCount int
}

// New constructs a Monitor for the given execution snapshot.
func New(exec job.Execution, checker ProcessChecker, bus *eventbus.Bus, sink *metrics.Sink, log *zap.Logger) *Monitor {
	return &Monitor{
		exec:    exec,
		checker: checker,
		bus:     bus,
		metrics: sink,
		log:     log.With(zap.String("jobId", exec.JobID)),
	}
}

// tick runs exactly one monitor iteration and reports whether the
// monitor reached a terminal outcome (a JobFinished event was
// published) and should stop being scheduled.
func (m *Monitor) tick() (done bool) {
	err := m.checker.CheckProcess(m.exec.PID, m.exec.Deadline)
	switch {
	case err == nil:
		m.errorCount = 0

		if ok, serr := outputguard.SizeOK(m.exec.StdoutPath, m.exec.StdoutMaxBytes); serr == nil && !ok {
			m.metrics.Bump(metrics.StdOutTooLarge)
			m.bus.PublishKillJob(eventbus.KillJob{JobID: m.exec.JobID, Reason: "stdout too large", Source: "monitor"})
			return false
		}
		if ok, serr := outputguard.SizeOK(m.exec.StderrPath, m.exec.StderrMaxBytes); serr == nil && !ok {
			m.metrics.Bump(metrics.StdErrTooLarge)
			m.bus.PublishKillJob(eventbus.KillJob{JobID: m.exec.JobID, Reason: "stderr too large", Source: "monitor"})
			return false
		}

		m.metrics.Bump(metrics.SuccessfulStatusCheck)
		return false

	case errkind.IsDeadlineExceeded(err):
		m.metrics.Bump(metrics.Timeout)
		m.bus.PublishKillJob(eventbus.KillJob{JobID: m.exec.JobID, Reason: "timeout", Source: "monitor"})
		return false

	case errkind.IsProcessGone(err):
		m.metrics.Bump(metrics.Finished)
		m.bus.PublishJobFinished(eventbus.JobFinished{
			JobID:   m.exec.JobID,
			Reason:  eventbus.ReasonProcessCompleted,
			Message: "process detected complete",
			Source:  "monitor",
		})
		return true

	default:
		m.metrics.Bump(metrics.UnsuccessfulStatusCheck)
		m.errorCount++
		m.log.Warn("probe error", zap.Int("errorCount", m.errorCount), zap.Error(err))

		if m.errorCount > MaxErrors {
			reason := fmt.Sprintf("couldn't check status %d times", m.errorCount)
			m.bus.PublishKillJob(eventbus.KillJob{JobID: m.exec.JobID, Reason: reason, Source: "monitor"})
			m.bus.PublishJobFinished(eventbus.JobFinished{
				JobID:   m.exec.JobID,
				Reason:  eventbus.ReasonKilled,
				Message: reason,
				Source:  "monitor",
			})
			return true
		}
		return false
	}
}

// Run schedules tick() on a fixed-delay schedule: the next tick starts
// exactly exec.CheckDelay milliseconds after the previous tick returned
// (one second when CheckDelay is not positive). Run blocks until the monitor reaches a terminal outcome or ctx is
// canceled.
func (m *Monitor) Run(ctx context.Context) {
	delay := time.Duration(m.exec.CheckDelay) * time.Millisecond
	if delay <= 0 {
		delay = time.Second
	}

	for {
		if ctx.Err() != nil {
			return
		}

		if m.tick() {
			m.log.Debug("monitor reached terminal outcome, stopping")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
