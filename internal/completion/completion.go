// Package completion implements the completion handler: it consumes
// JobFinished events, runs the post-mortem finalization pipeline, and
// transitions the persisted job to a terminal status.
package completion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobsupervisor/internal/donefile"
	"jobsupervisor/internal/eventbus"
	"jobsupervisor/internal/filetransfer"
	"jobsupervisor/internal/job"
	"jobsupervisor/internal/mail"
	"jobsupervisor/internal/metrics"
	"jobsupervisor/internal/search"
)

// Config holds the configuration keys recognized by the completion
// pipeline.
type Config struct {
	BaseWorkingDir            string
	DeleteArchiveFileEnabled  bool
	DeleteDependenciesEnabled bool
	RunAsUserEnabled          bool
}

// DefaultConfig returns the completion pipeline's defaults:
// deleteArchiveFile and deleteDependencies default to true, runAsUser
// defaults to false.
func DefaultConfig(baseWorkingDir string) Config {
	return Config{
		BaseWorkingDir:            baseWorkingDir,
		DeleteArchiveFileEnabled:  true,
		DeleteDependenciesEnabled: true,
		RunAsUserEnabled:          false,
	}
}

// Handler is the completion pipeline. It holds no long-lived per-job
// state; every call to Handle is self-contained.
type Handler struct {
	cfg     Config
	search  search.Service
	store   persistenceUpdater
	exec    commandRunner
	xfer    filetransfer.Service
	mailer  mail.Service
	metrics *metrics.Sink
	log     *zap.Logger
}

// persistenceUpdater is the narrow slice of persistence.Store the
// handler needs; declared locally so tests can supply a fake without
// importing the whole persistence package.
type persistenceUpdater interface {
	Get(jobID string) (job.Record, error)
	UpdateJobStatus(jobID string, status job.Status, message string) error
	SetExitCode(jobID string, exitCode int) error
}

// commandRunner is the narrow slice of execrunner.Runner the handler
// needs; declared locally so tests can supply a fake without shelling
// out to pkill/rm/tar. *execrunner.Runner satisfies it.
type commandRunner interface {
	PkillGroup(ctx context.Context, signal string, pid int) error
	RemoveRecursive(ctx context.Context, path string, asUser bool) error
	Archive(ctx context.Context, workingDir, archivePath string) error
}

// New constructs a Handler.
func New(cfg Config, search search.Service, store persistenceUpdater, exec commandRunner, xfer filetransfer.Service, mailer mail.Service, sink *metrics.Sink, log *zap.Logger) *Handler {
	return &Handler{
		cfg:     cfg,
		search:  search,
		store:   store,
		exec:    exec,
		xfer:    xfer,
		mailer:  mailer,
		metrics: sink,
		log:     log,
	}
}

// Handle runs the completion state machine and post-mortem pipeline for
// one finished job. It never returns an error to the caller: event
// acknowledgement is always successful, and every step is its own error
// boundary.
func (h *Handler) Handle(ctx context.Context, evt eventbus.JobFinished) {
	auditID := uuid.New().String()
	log := h.log.With(zap.String("jobId", evt.JobID), zap.String("auditId", auditID), zap.String("reason", string(evt.Reason)))

	rec, err := h.search.GetJob(evt.JobID)
	if err != nil {
		// A load failure here is the one globally fatal error: we have
		// nothing to act on and nothing safe to write.
		log.Error("cannot load job for completion handling", zap.Error(err))
		return
	}

	// Idempotence gate: a terminal job is a no-op, making re-delivery of
	// the same event safe.
	if rec.Status.Terminal() {
		log.Debug("job already terminal, ignoring redelivered event")
		return
	}

	switch rec.Status {
	case job.StatusInit:
		h.assignFromReason(log, evt)
	case job.StatusRunning:
		h.finalizeFromDoneFile(ctx, log, evt.JobID)
		h.cleanupProcessGroup(ctx, log, evt.JobID)
	}

	// Post-mortem actions run regardless of which branch above ran.
	h.processDirectory(ctx, log, evt.JobID)
	h.sendNotification(log, evt.JobID)
}

// assignFromReason handles a job still in INIT: map the event's reason
// directly to a terminal status.
func (h *Handler) assignFromReason(log *zap.Logger, evt eventbus.JobFinished) {
	var status job.Status
	switch evt.Reason {
	case eventbus.ReasonKilled:
		status = job.StatusKilled
	case eventbus.ReasonInvalid:
		status = job.StatusInvalid
	case eventbus.ReasonFailedToInit:
		status = job.StatusFailed
	case eventbus.ReasonProcessCompleted:
		status = job.StatusSucceeded
	default:
		// Unknown reason: log, count, and do not transition. Downstream
		// steps still run against the job's current INIT status.
		log.Error("unknown JobFinished reason on INIT job, not transitioning", zap.String("reason", string(evt.Reason)))
		h.metrics.Bump(metrics.FinalStatusUpdateFailure)
		return
	}

	if err := h.store.UpdateJobStatus(evt.JobID, status, string(evt.Reason)); err != nil {
		log.Error("failed writing status from INIT", zap.Error(err))
		h.metrics.Bump(metrics.FinalStatusUpdateFailure)
	}
}

// finalizeFromDoneFile reads the done file and delegates the
// exit-code-derived status transition to persistence. A missing or
// malformed done file forces FAILED with the canonical message; any
// other failure (e.g. a persistence outage while writing) is counted
// separately and swallowed.
func (h *Handler) finalizeFromDoneFile(_ context.Context, log *zap.Logger, jobID string) {
	rec, err := donefile.Read(h.cfg.BaseWorkingDir, jobID)
	if err != nil {
		log.Warn("done file missing or malformed", zap.Error(err))
		h.metrics.Bump(metrics.DoneFileProcessingFailure)
		if uerr := h.store.UpdateJobStatus(jobID, job.StatusFailed, "Genie could not load done file."); uerr != nil {
			log.Error("failed forcing FAILED status after done file failure", zap.Error(uerr))
			h.metrics.Bump(metrics.FinalStatusUpdateFailure)
		}
		return
	}

	if err := h.store.SetExitCode(jobID, rec.ExitCode); err != nil {
		log.Error("persistence failure writing exit code", zap.Error(err))
		h.metrics.Bump(metrics.FinalStatusUpdateFailure)
	}
}

// cleanupProcessGroup is a safety-net PID-group kill. Success is an
// anomaly - the wrapper script should already have reaped its children
// - and bumps the same failure counter as an inability to even look up
// the execution record.
func (h *Handler) cleanupProcessGroup(ctx context.Context, log *zap.Logger, jobID string) {
	exec, err := h.search.GetJobExecution(jobID)
	if err != nil {
		log.Warn("cannot look up execution record for process-group cleanup", zap.Error(err))
		h.metrics.Bump(metrics.ProcessGroupCleanupFailure)
		return
	}

	if err := h.exec.PkillGroup(ctx, "9", exec.PID); err == nil {
		// The kill landed: the group was NOT already gone. That means the
		// wrapper script left orphaned children behind.
		log.Warn("process group cleanup kill unexpectedly succeeded", zap.Int("pid", exec.PID))
		h.metrics.Bump(metrics.ProcessGroupCleanupFailure)
	}
}

// processDirectory runs dependency deletion followed by archive
// creation and upload.
func (h *Handler) processDirectory(ctx context.Context, log *zap.Logger, jobID string) {
	jobWorkingDir := filepath.Join(h.cfg.BaseWorkingDir, jobID)
	if _, err := os.Stat(jobWorkingDir); err != nil {
		return
	}

	if h.cfg.DeleteDependenciesEnabled {
		h.deleteDependencies(ctx, log, jobID, jobWorkingDir)
	}

	rec, err := h.search.GetJob(jobID)
	if err != nil {
		log.Error("cannot reload job for archive processing", zap.Error(err))
		h.metrics.Bump(metrics.ArchivalFailure)
		return
	}

	if rec.ArchiveLocation == "" {
		return
	}

	h.archiveAndUpload(ctx, log, jobID, jobWorkingDir, rec.ArchiveLocation)
}

func (h *Handler) deleteDependencies(ctx context.Context, log *zap.Logger, jobID, jobWorkingDir string) {
	apps, err := h.search.GetJobApplications(jobID)
	if err != nil {
		log.Warn("cannot look up job applications for dependency deletion", zap.Error(err))
		h.metrics.Bump(metrics.DeleteDependenciesFailure)
		return
	}

	for _, appID := range apps {
		depPath := job.ApplicationDependencyPath(jobWorkingDir, appID)
		if _, err := os.Stat(depPath); err != nil {
			continue
		}
		if err := h.exec.RemoveRecursive(ctx, depPath, h.cfg.RunAsUserEnabled); err != nil {
			log.Warn("failed deleting application dependency tree", zap.String("appId", appID), zap.Error(err))
			h.metrics.Bump(metrics.DeleteDependenciesFailure)
		}
	}
}

func (h *Handler) archiveAndUpload(ctx context.Context, log *zap.Logger, jobID, jobWorkingDir, archiveLocation string) {
	archivePath := filepath.Join(jobWorkingDir, "genie", "logs", jobID+".tar.gz")

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		log.Error("cannot create archive staging directory", zap.Error(err))
		h.metrics.Bump(metrics.ArchivalFailure)
		return
	}

	if err := h.exec.Archive(ctx, jobWorkingDir, archivePath); err != nil {
		log.Error("archive creation failed", zap.Error(err))
		h.metrics.Bump(metrics.ArchivalFailure)
		return
	}

	if err := h.xfer.PutFile(ctx, archivePath, archiveLocation); err != nil {
		log.Error("archive upload failed", zap.Error(err))
		h.metrics.Bump(metrics.ArchivalFailure)
		return
	}

	if h.cfg.DeleteArchiveFileEnabled {
		if err := os.Remove(archivePath); err != nil {
			log.Warn("failed deleting local archive after upload", zap.Error(err))
			h.metrics.Bump(metrics.ArchiveFileDeletionFailure)
		}
	}
}

// sendNotification emails the job's submitter its final status, if a
// submitter email was recorded at submission time.
func (h *Handler) sendNotification(log *zap.Logger, jobID string) {
	req, err := h.search.GetJobRequest(jobID)
	if err != nil || req.SubmitterEmail == "" {
		return
	}

	rec, err := h.search.GetJob(jobID)
	if err != nil {
		log.Warn("cannot reload job for email notification", zap.Error(err))
		h.metrics.Bump(metrics.EmailFailure)
		return
	}

	subject := fmt.Sprintf("Genie Job %s", jobID)
	body := fmt.Sprintf("Job %s finished with final status %s.", jobID, rec.Status)

	if err := h.mailer.SendEmail(req.SubmitterEmail, subject, body); err != nil {
		log.Warn("email notification failed", zap.Error(err))
		h.metrics.Bump(metrics.EmailFailure)
		return
	}

	h.metrics.Bump(metrics.EmailSuccess)
}
