// Package launcher is a reference implementation of the job-launch
// subsystem: the out-of-scope external collaborator that writes a job's
// working-directory layout and spawns its child process. It exists so
// the supervisor can be exercised end to end; production deployments
// are expected to supply their own launcher that satisfies the same
// filesystem contract.
package launcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"jobsupervisor/internal/job"
)

// Launcher spawns child processes under baseWorkingDir, laid out
// according to the stable job working-directory layout, and reports
// each one's job.Execution snapshot to the caller.
type Launcher struct {
	baseWorkingDir string
	limiter        *ResourceLimiter // nil disables cgroup-based resource limiting
	log            *zap.Logger
}

// New returns a Launcher rooted at baseWorkingDir. limiter may be nil to
// run without cgroup-based resource limits (e.g. non-Linux, or no
// permission to manage cgroups).
func New(baseWorkingDir string, limiter *ResourceLimiter, log *zap.Logger) *Launcher {
	return &Launcher{baseWorkingDir: baseWorkingDir, limiter: limiter, log: log}
}

// Launch starts command with args as a child process, laying out
// <baseWorkingDir>/<jobId>/genie/{stdout.log,stderr.log} and eventually
// writing <baseWorkingDir>/<jobId>/genie/genie.done once the process
// exits. It returns the job's Execution snapshot (with PID populated)
// as soon as the process has started; the done file appears later, on
// its own goroutine, exactly as a real wrapper script would produce it
// asynchronously from the supervisor's point of view.
func (l *Launcher) Launch(jobID, command string, args []string, checkDelayMillis, timeoutMillis, stdoutMax, stderrMax int64) (job.Execution, error) {
	if jobID == "" {
		var err error
		jobID, err = newJobID()
		if err != nil {
			return job.Execution{}, err
		}
	}

	jobDir := filepath.Join(l.baseWorkingDir, jobID)
	genieDir := filepath.Join(jobDir, "genie")
	if err := os.MkdirAll(genieDir, 0o755); err != nil {
		return job.Execution{}, fmt.Errorf("launcher: create job dir: %w", err)
	}

	stdoutPath := filepath.Join(genieDir, "stdout.log")
	stderrPath := filepath.Join(genieDir, "stderr.log")

	stdoutFile, err := os.Create(stdoutPath)
	if err != nil {
		return job.Execution{}, fmt.Errorf("launcher: create stdout file: %w", err)
	}
	stderrFile, err := os.Create(stderrPath)
	if err != nil {
		stdoutFile.Close()
		return job.Execution{}, fmt.Errorf("launcher: create stderr file: %w", err)
	}

	cmd := exec.Command(command, args...)
	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile
	cmd.Dir = jobDir

	var jobCgroupPath string
	if l.limiter != nil {
		jobCgroupPath, err = l.limiter.CreateJobCgroup(jobID)
		if err != nil {
			stdoutFile.Close()
			stderrFile.Close()
			return job.Execution{}, fmt.Errorf("launcher: create job cgroup: %w", err)
		}
		cgfd, err := syscall.Open(jobCgroupPath, syscall.O_DIRECTORY, 0)
		if err != nil {
			stdoutFile.Close()
			stderrFile.Close()
			return job.Execution{}, fmt.Errorf("launcher: open job cgroup fd: %w", err)
		}
		cmd.SysProcAttr = &syscall.SysProcAttr{UseCgroupFD: true, CgroupFD: cgfd}
		defer syscall.Close(cgfd)
	}

	if err := cmd.Start(); err != nil {
		stdoutFile.Close()
		stderrFile.Close()
		return job.Execution{}, fmt.Errorf("launcher: start command: %w", err)
	}

	log := l.log.With(zap.String("jobId", jobID), zap.Int("pid", cmd.Process.Pid))
	log.Info("launched job")

	go l.waitAndWriteDoneFile(jobID, genieDir, cmd, stdoutFile, stderrFile)

	var deadline int64
	if timeoutMillis > 0 {
		deadline = time.Now().UnixMilli() + timeoutMillis
	}

	return job.Execution{
		JobID:          jobID,
		PID:            cmd.Process.Pid,
		CheckDelay:     checkDelayMillis,
		Deadline:       deadline,
		StdoutPath:     stdoutPath,
		StderrPath:     stderrPath,
		StdoutMaxBytes: stdoutMax,
		StderrMaxBytes: stderrMax,
	}, nil
}

// waitAndWriteDoneFile waits for the child to exit and writes the done
// file the completion handler will later read, matching the wrapper
// script's contract even though this reference launcher could read the
// exit code directly from cmd.Wait(): the done file stays the single
// source of truth for exit status so the completion handler behaves
// identically against a real wrapper script.
func (l *Launcher) waitAndWriteDoneFile(jobID, genieDir string, cmd *exec.Cmd, stdoutFile, stderrFile *os.File) {
	defer stdoutFile.Close()
	defer stderrFile.Close()

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			if exitCode == -1 {
				exitCode = 137 // terminated by signal; a real wrapper would encode the signal, we just flag non-zero.
			}
		} else {
			exitCode = 1
		}
	}

	if l.limiter != nil {
		if err := l.limiter.RemoveJobCgroup(jobID); err != nil {
			l.log.Warn("failed removing job cgroup after exit", zap.String("jobId", jobID), zap.Error(err))
		}
	}

	done := struct {
		ExitCode int `json:"exitCode"`
	}{ExitCode: exitCode}

	data, err := json.Marshal(done)
	if err != nil {
		l.log.Error("failed marshaling done file", zap.String("jobId", jobID), zap.Error(err))
		return
	}

	donePath := filepath.Join(genieDir, "genie.done")
	if err := os.WriteFile(donePath, data, 0o644); err != nil {
		l.log.Error("failed writing done file", zap.String("jobId", jobID), zap.Error(err))
	}
}

func newJobID() (string, error) {
	ks, err := ksuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("launcher: generate job id: %w", err)
	}
	return ks.String(), nil
}
