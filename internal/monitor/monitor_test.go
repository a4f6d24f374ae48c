package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobsupervisor/internal/errkind"
	"jobsupervisor/internal/eventbus"
	"jobsupervisor/internal/job"
	"jobsupervisor/internal/metrics"
)

// fakeChecker lets tests script a sequence of CheckProcess results
// without spawning real processes.
type fakeChecker struct {
	results []error
	calls   int
}

func (f *fakeChecker) CheckProcess(int, int64) error {
	if f.calls >= len(f.results) {
		return f.results[len(f.results)-1]
	}
	err := f.results[f.calls]
	f.calls++
	return err
}

func newTestMonitor(t *testing.T, checker ProcessChecker) (*Monitor, *eventbus.Bus, *metrics.Sink) {
	t.Helper()
	bus := eventbus.New()
	sink := metrics.NewSink(metrics.AllNames()...)
	exec := job.Execution{
		JobID:          "job-1",
		PID:            1234,
		CheckDelay:     10,
		Deadline:       1 << 62,
		StdoutPath:     filepath.Join(t.TempDir(), "stdout.log"),
		StderrPath:     filepath.Join(t.TempDir(), "stderr.log"),
		StdoutMaxBytes: 1000,
		StderrMaxBytes: 1000,
	}
	return New(exec, checker, bus, sink, zap.NewNop()), bus, sink
}

func TestTickSuccessResetsErrorCountAndBumpsMetric(t *testing.T) {
	checker := &fakeChecker{results: []error{&errkind.ProbeError{Op: "check", PID: 1}, nil}}
	mon, _, sink := newTestMonitor(t, checker)
	mon.errorCount = 3

	done := mon.tick()
	assert.False(t, done)
	assert.Equal(t, int64(1), sink.Get(metrics.UnsuccessfulStatusCheck))
	assert.Equal(t, 4, mon.errorCount)

	done = mon.tick()
	assert.False(t, done)
	assert.Equal(t, 0, mon.errorCount)
	assert.Equal(t, int64(1), sink.Get(metrics.SuccessfulStatusCheck))
}

func TestTickStdoutTooLargePublishesKillJobWithoutTerminating(t *testing.T) {
	checker := &fakeChecker{results: []error{nil}}
	mon, bus, sink := newTestMonitor(t, checker)
	require.NoError(t, os.WriteFile(mon.exec.StdoutPath, make([]byte, mon.exec.StdoutMaxBytes+1), 0o644))

	var killed []eventbus.KillJob
	bus.SubscribeKillJob(func(evt eventbus.KillJob) { killed = append(killed, evt) })

	done := mon.tick()
	assert.False(t, done)
	require.Len(t, killed, 1)
	assert.Equal(t, "job-1", killed[0].JobID)
	assert.Equal(t, int64(1), sink.Get(metrics.StdOutTooLarge))
}

func TestTickStderrTooLargePublishesKillJobWithoutTerminating(t *testing.T) {
	checker := &fakeChecker{results: []error{nil}}
	mon, bus, sink := newTestMonitor(t, checker)
	require.NoError(t, os.WriteFile(mon.exec.StderrPath, make([]byte, mon.exec.StderrMaxBytes+1), 0o644))

	var killed []eventbus.KillJob
	bus.SubscribeKillJob(func(evt eventbus.KillJob) { killed = append(killed, evt) })

	done := mon.tick()
	assert.False(t, done)
	require.Len(t, killed, 1)
	assert.Equal(t, int64(1), sink.Get(metrics.StdErrTooLarge))
}

func TestTickTimeoutPublishesKillJobAndContinues(t *testing.T) {
	checker := &fakeChecker{results: []error{errkind.ErrDeadlineExceeded}}
	mon, bus, sink := newTestMonitor(t, checker)

	var killed []eventbus.KillJob
	bus.SubscribeKillJob(func(evt eventbus.KillJob) { killed = append(killed, evt) })

	done := mon.tick()
	assert.False(t, done, "a timeout kills the job but the monitor keeps polling until the process is actually gone")
	require.Len(t, killed, 1)
	assert.Equal(t, int64(1), sink.Get(metrics.Timeout))
}

func TestTickProcessGonePublishesJobFinishedAndStops(t *testing.T) {
	checker := &fakeChecker{results: []error{errkind.ErrProcessGone}}
	mon, bus, sink := newTestMonitor(t, checker)

	var finished []eventbus.JobFinished
	bus.SubscribeJobFinished(func(evt eventbus.JobFinished) { finished = append(finished, evt) })

	done := mon.tick()
	assert.True(t, done)
	require.Len(t, finished, 1)
	assert.Equal(t, eventbus.ReasonProcessCompleted, finished[0].Reason)
	assert.Equal(t, int64(1), sink.Get(metrics.Finished))
}

func TestTickToleratesUpToMaxErrorsConsecutiveProbeErrors(t *testing.T) {
	probeErr := &errkind.ProbeError{Op: "check", PID: 1}
	checker := &fakeChecker{results: []error{probeErr}}
	mon, bus, sink := newTestMonitor(t, checker)

	var killed []eventbus.KillJob
	var finished []eventbus.JobFinished
	bus.SubscribeKillJob(func(evt eventbus.KillJob) { killed = append(killed, evt) })
	bus.SubscribeJobFinished(func(evt eventbus.JobFinished) { finished = append(finished, evt) })

	for i := 0; i < MaxErrors; i++ {
		done := mon.tick()
		assert.False(t, done, "tick %d should not be terminal", i+1)
	}
	assert.Equal(t, MaxErrors, mon.errorCount)
	assert.Empty(t, killed)
	assert.Empty(t, finished)
	assert.Equal(t, int64(MaxErrors), sink.Get(metrics.UnsuccessfulStatusCheck))

	// The (MaxErrors+1)th consecutive probe error escalates: both a kill
	// and a finished event fire, and the monitor reports terminal.
	done := mon.tick()
	assert.True(t, done)
	require.Len(t, killed, 1)
	require.Len(t, finished, 1)
	assert.Equal(t, eventbus.ReasonKilled, finished[0].Reason)
}

func TestRunStopsWhenContextCanceledBeforeFirstDelay(t *testing.T) {
	checker := &fakeChecker{results: []error{&errkind.ProbeError{Op: "check", PID: 1}}}
	mon, _, _ := newTestMonitor(t, checker)
	mon.exec.CheckDelay = 60_000

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly after context cancellation")
	}
}
