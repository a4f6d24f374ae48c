package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsupervisor/internal/job"
	"jobsupervisor/internal/persistence"
)

func TestInMemoryGetJobDelegatesToStore(t *testing.T) {
	store := persistence.NewFileStore(t.TempDir())
	require.NoError(t, store.Put(job.Record{ID: "job-1", Status: job.StatusRunning}))

	svc := NewInMemory(store)
	rec, err := svc.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusRunning, rec.Status)
}

func TestInMemoryGetJobStatusDelegatesToStore(t *testing.T) {
	store := persistence.NewFileStore(t.TempDir())
	require.NoError(t, store.Put(job.Record{ID: "job-1", Status: job.StatusSucceeded}))

	svc := NewInMemory(store)
	status, err := svc.GetJobStatus("job-1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusSucceeded, status)
}

func TestInMemoryGetJobExecutionRequiresRegistration(t *testing.T) {
	svc := NewInMemory(persistence.NewFileStore(t.TempDir()))

	_, err := svc.GetJobExecution("job-1")
	assert.Error(t, err)

	svc.RegisterExecution(job.Execution{JobID: "job-1", PID: 42})
	exec, err := svc.GetJobExecution("job-1")
	require.NoError(t, err)
	assert.Equal(t, 42, exec.PID)
}

func TestInMemoryGetJobApplicationsReadsFromRegisteredRequest(t *testing.T) {
	svc := NewInMemory(persistence.NewFileStore(t.TempDir()))

	_, err := svc.GetJobApplications("job-1")
	assert.Error(t, err)

	svc.RegisterRequest(job.Request{JobID: "job-1", Applications: []string{"spark", "hive"}})
	apps, err := svc.GetJobApplications("job-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"spark", "hive"}, apps)
}

func TestInMemoryGetJobRequestRequiresRegistration(t *testing.T) {
	svc := NewInMemory(persistence.NewFileStore(t.TempDir()))

	_, err := svc.GetJobRequest("job-1")
	assert.Error(t, err)

	svc.RegisterRequest(job.Request{JobID: "job-1", SubmitterEmail: "a@example.com"})
	req, err := svc.GetJobRequest("job-1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", req.SubmitterEmail)
}
