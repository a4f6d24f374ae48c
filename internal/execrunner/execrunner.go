// Package execrunner is the shared external-command executor used by
// the completion pipeline for pkill, rm, and tar. Every invocation takes
// its arguments as discrete tokens — no shell string is ever built from
// user-controlled data — and stdout/stderr are always discarded.
package execrunner

import (
	"context"
	"fmt"
	"os/exec"

	"golang.org/x/time/rate"
)

// Runner executes external commands with a shared, optional rate limit
// built on golang.org/x/time/rate. The limiter bounds how many
// archive/cleanup child processes (tar, rm, pkill) all of a node's
// completion handlers may spawn per second, since Runner is shared
// across every job's handler and must tolerate concurrent invocations.
type Runner struct {
	limiter *rate.Limiter
}

// New returns a Runner. A ratePerSecond of 0 disables throttling.
func New(ratePerSecond float64) *Runner {
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return &Runner{limiter: limiter}
}

// Run executes name with args as discrete argument tokens, optionally in
// dir, and blocks until the command exits. Standard output and standard
// error are discarded; only the exit error (if any) is returned.
func (r *Runner) Run(ctx context.Context, dir, name string, args ...string) error {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("execrunner: rate limiter: %w", err)
		}
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	// Per the command-execution contract, we never stream or capture
	// child stdio; only the exit status matters to callers.
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("execrunner: %s %v: %w", name, args, err)
	}
	return nil
}

// PkillGroup sends signal to every process in pid's process group. A
// nil return here is an anomaly the caller should treat specially: the
// wrapper script is expected to have already reaped its children, so a
// clean kill means something was still running to be signalled.
func (r *Runner) PkillGroup(ctx context.Context, signal string, pid int) error {
	return r.Run(ctx, "", "pkill", "-"+signal, fmt.Sprint(pid))
}

// RemoveRecursive deletes path recursively, via sudo when asUser is
// true, for dependency-tree cleanup.
func (r *Runner) RemoveRecursive(ctx context.Context, path string, asUser bool) error {
	if asUser {
		return r.Run(ctx, "", "sudo", "rm", "-rf", path)
	}
	return r.Run(ctx, "", "rm", "-rf", path)
}

// Archive creates a gzip tarball at archivePath containing the contents
// of workingDir, running tar with workingDir as its current directory so
// the archive's entries are relative, not absolute.
func (r *Runner) Archive(ctx context.Context, workingDir, archivePath string) error {
	return r.Run(ctx, workingDir, "sudo", "tar", "-c", "-z", "-f", archivePath, "./")
}
