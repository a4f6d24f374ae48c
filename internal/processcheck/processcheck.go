// Package processcheck implements the Process Checker: a single
// operation that reports whether a job's PID is still alive, taking the
// job's wall-clock deadline into account before it ever probes the
// process table.
package processcheck

import (
	"errors"
	"os"
	"syscall"
	"time"

	"jobsupervisor/internal/errkind"
)

// Checker probes PIDs for liveness. The zero value is usable.
type Checker struct{}

// New returns a ready-to-use Checker.
func New() *Checker {
	return &Checker{}
}

// CheckProcess reports whether pid currently names a live process, with
// deadlineUnixMilli as the job's absolute wall-clock kill deadline.
//
// Timeout takes precedence over every other outcome: if the deadline has
// already passed, CheckProcess returns errkind.ErrDeadlineExceeded even
// when the process is still alive. Otherwise it returns nil on success,
// errkind.ErrProcessGone when the PID no longer names a live process, or
// a *errkind.ProbeError for any other probe failure.
func (c *Checker) CheckProcess(pid int, deadlineUnixMilli int64) error {
	if deadlineUnixMilli > 0 && time.Now().UnixMilli() >= deadlineUnixMilli {
		return errkind.ErrDeadlineExceeded
	}

	if pid <= 0 {
		return errkind.ErrProcessGone
	}

	p, err := os.FindProcess(pid)
	if err != nil {
		return &errkind.ProbeError{Op: "checkProcess", PID: pid, Err: err}
	}

	// Signal zero delivers nothing; it only checks that the kernel still
	// has a process table entry for pid. This is idempotent and has no
	// effect on the child.
	if err := p.Signal(syscall.Signal(0)); err != nil {
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			return errkind.ErrProcessGone
		}
		return &errkind.ProbeError{Op: "checkProcess", PID: pid, Err: err}
	}

	return nil
}
