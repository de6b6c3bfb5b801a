// Package lockfile provides the advisory file lock that serializes every
// mutation of a single bubble across processes.
//
// The lock is an exclusive-create file: acquisition creates the file with
// O_EXCL and failure means somebody else holds it. Unlike flock(2) locks the
// file is removed on release, so a present file always means a held (or
// crashed) owner; the owner's PID is stored inside so waiters can reap locks
// left behind by dead processes.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	// DefaultTimeout bounds how long a caller waits for a contended lock.
	DefaultTimeout = 5 * time.Second
	// DefaultPoll is the retry interval while waiting.
	DefaultPoll = 25 * time.Millisecond
)

// TimeoutError reports that the lock stayed contended for the whole timeout.
type TimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %v waiting for lock %s", e.Timeout, e.Path)
}

// WithLock acquires the exclusive lock at path, runs fn, and releases the
// lock. The lock file is removed on every exit path, including a panic in
// fn. Acquisition retries every poll until timeout elapses, then fails with
// a TimeoutError. Context cancellation aborts the wait early.
func WithLock(ctx context.Context, path string, timeout, poll time.Duration, fn func() error) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if poll <= 0 {
		poll = DefaultPoll
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			break
		}
		if !os.IsExist(err) {
			return fmt.Errorf("creating lock %s: %w", path, err)
		}
		if reapStaleLock(path) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Path: path, Timeout: timeout}
		}
		time.Sleep(poll)
	}

	defer os.Remove(path)
	return fn()
}

// reapStaleLock removes path when its recorded owner is provably dead.
// Returns true when the caller should retry acquisition immediately. An
// unreadable or half-written lock file is treated as live.
func reapStaleLock(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false
	}
	if processAlive(pid) {
		return false
	}
	return os.Remove(path) == nil
}

// processAlive reports whether a process with this PID exists. EPERM counts
// as alive: the process exists but belongs to another user.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
