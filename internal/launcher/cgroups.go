package launcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Cgroup-v2 based per-job resource limiting for the reference launcher.
// The job-launch subsystem itself is an external collaborator outside
// the supervisor's own scope; this is a reference stand-in used by the
// launcher to exercise the supervisor end to end, so limits here exist
// to keep a runaway demo job from overrunning the host, not as a
// product requirement.

const (
	cgroup2MountRoot          = "/sys/fs/cgroup"
	cgroupSubtreeCtrlFilename = "cgroup.subtree_control"
	cgroupControllerEnable    = "+io +cpu +memory"
	cgroupParentDir           = "jobsupervisor"
	cgroupKillFilename        = "cgroup.kill"
)

const (
	cpuMaxLimitMicrosecs  = "100000 100000"
	cpuMaxLimitFile       = "cpu.max"
	memoryMaxLimitBytes   = "536870912"
	memoryMaxLimitFile    = "memory.max"
	memoryOOMGroup        = "1"
	memoryOOMGroupFile    = "memory.oom.group"
	ioMaxLimitIOPS        = "riops=200 wiops=200"
	ioMaxLimitBytesPerSec = "rbps=41943040 wbps=41943040"
	ioMaxLimitFile        = "io.max"
)

// ResourceLimiter owns a cgroup-v2 hierarchy rooted under a single pool
// directory, with one job-scoped subdirectory created per launched job.
type ResourceLimiter struct {
	ioDevMajorMinor string
}

// NewResourceLimiter sets up the pool-level cgroup hierarchy. ioDevMajorMinor
// identifies the block device ("major:minor") whose IO quota jobs share.
func NewResourceLimiter(ioDevMajorMinor string) (*ResourceLimiter, error) {
	poolDir := filepath.Join(cgroup2MountRoot, cgroupParentDir)
	if err := os.MkdirAll(poolDir, 0o755); err != nil {
		return nil, fmt.Errorf("launcher: create pool cgroup dir %q: %w", poolDir, err)
	}

	cscFile := filepath.Join(poolDir, cgroupSubtreeCtrlFilename)
	if err := os.WriteFile(cscFile, []byte(cgroupControllerEnable), 0o644); err != nil {
		return nil, fmt.Errorf("launcher: enable cgroup controllers on %q: %w", cscFile, err)
	}

	return &ResourceLimiter{ioDevMajorMinor: ioDevMajorMinor}, nil
}

// Teardown kills every process still running under the pool's cgroup
// hierarchy and removes it.
func (r *ResourceLimiter) Teardown() error {
	poolDir := filepath.Join(cgroup2MountRoot, cgroupParentDir)

	entries, err := os.ReadDir(poolDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("launcher: read pool cgroup dir: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		jobDir := filepath.Join(poolDir, entry.Name())
		killFile := filepath.Join(jobDir, cgroupKillFilename)
		if err := os.WriteFile(killFile, []byte("1"), 0o644); err != nil {
			errs = append(errs, err)
		}
		if err := syscall.Rmdir(jobDir); err != nil {
			errs = append(errs, err)
		}
	}

	if err := syscall.Rmdir(poolDir); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// CreateJobCgroup creates a job-scoped cgroup subdirectory and applies
// the fixed CPU/memory/IO limits, returning the directory path.
func (r *ResourceLimiter) CreateJobCgroup(jobID string) (string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", errors.New("launcher: jobID for cgroup creation is empty")
	}

	jobDir := filepath.Join(cgroup2MountRoot, cgroupParentDir, jobID)
	if err := os.Mkdir(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("launcher: create job cgroup for %q: %w", jobID, err)
	}

	writes := []struct {
		file, value string
	}{
		{memoryMaxLimitFile, memoryMaxLimitBytes},
		{memoryOOMGroupFile, memoryOOMGroup},
		{cpuMaxLimitFile, cpuMaxLimitMicrosecs},
	}
	if r.ioDevMajorMinor != "" {
		writes = append(writes, struct{ file, value string }{
			ioMaxLimitFile,
			fmt.Sprintf("%s %s %s", r.ioDevMajorMinor, ioMaxLimitBytesPerSec, ioMaxLimitIOPS),
		})
	}

	for _, w := range writes {
		path := filepath.Join(jobDir, w.file)
		if err := os.WriteFile(path, []byte(w.value), 0o644); err != nil {
			return "", fmt.Errorf("launcher: write %q for job %q: %w", path, jobID, err)
		}
	}

	return jobDir, nil
}

// RemoveJobCgroup kills anything left running in jobID's cgroup and
// removes the directory. It is idempotent.
func (r *ResourceLimiter) RemoveJobCgroup(jobID string) error {
	jobDir := filepath.Join(cgroup2MountRoot, cgroupParentDir, jobID)

	killFile := filepath.Join(jobDir, cgroupKillFilename)
	if err := os.WriteFile(killFile, []byte("1"), 0o644); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("launcher: kill job cgroup %q: %w", jobID, err)
	}

	if err := syscall.Rmdir(jobDir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("launcher: remove job cgroup dir %q: %w", jobDir, err)
	}
	return nil
}
