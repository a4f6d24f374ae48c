package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"jobsupervisor/internal/eventbus"
	"jobsupervisor/internal/job"
	"jobsupervisor/internal/metrics"
)

// blockingChecker never resolves until released, so its Monitor occupies
// a scheduler pool slot indefinitely.
type blockingChecker struct {
	release chan struct{}
}

func (b *blockingChecker) CheckProcess(int, int64) error {
	<-b.release
	return nil
}

func newScheduler(t *testing.T, poolSize int, checker ProcessChecker) *Scheduler {
	t.Helper()
	return NewScheduler(poolSize, checker, eventbus.New(), metrics.NewSink(metrics.AllNames()...), zap.NewNop())
}

func TestSchedulerStartRejectsDuplicateJobID(t *testing.T) {
	defer goleak.VerifyNone(t)

	checker := &fakeChecker{results: []error{nil}}
	sched := newScheduler(t, 0, checker)
	exec := job.Execution{JobID: "job-1", CheckDelay: 1}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sched.Start(ctx, exec))
	err := sched.Start(ctx, exec)
	assert.Error(t, err)

	sched.Stop("job-1")
	waitUntilNotRunning(t, sched, "job-1")
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	sched := newScheduler(t, 0, &fakeChecker{results: []error{nil}})
	assert.NotPanics(t, func() {
		sched.Stop("never-started")
		sched.Stop("never-started")
	})
}

func TestSchedulerRunningReflectsLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	checker := &fakeChecker{results: []error{nil, nil, nil}}
	sched := newScheduler(t, 0, checker)
	exec := job.Execution{JobID: "job-2", CheckDelay: 1}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.False(t, sched.Running("job-2"))
	require.NoError(t, sched.Start(ctx, exec))
	assert.True(t, sched.Running("job-2"))

	sched.Stop("job-2")
	waitUntilNotRunning(t, sched, "job-2")
}

func TestSchedulerBoundsConcurrentMonitorsToPoolSize(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	checker := &blockingChecker{release: release}
	sched := newScheduler(t, 1, checker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sched.Start(ctx, job.Execution{JobID: "job-a", CheckDelay: 60_000}))

	// The pool has exactly one slot, already held by job-a's monitor, so
	// job-b's Start succeeds (a distinct job ID is always accepted) but
	// its goroutine blocks on acquire() until job-a releases the slot.
	require.NoError(t, sched.Start(ctx, job.Execution{JobID: "job-b", CheckDelay: 60_000}))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, sched.Running("job-a"))
	assert.True(t, sched.Running("job-b"))

	close(release)
	cancel()
	waitUntilNotRunning(t, sched, "job-a")
	waitUntilNotRunning(t, sched, "job-b")
}

func waitUntilNotRunning(t *testing.T, sched *Scheduler, jobID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !sched.Running(jobID) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("monitor for %s still running after deadline", jobID)
}
