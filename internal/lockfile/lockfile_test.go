package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWithLockRunsAndCleansUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "b_01.lock")

	ran := false
	err := WithLock(context.Background(), path, time.Second, 0, func() error {
		ran = true
		if _, err := os.Stat(path); err != nil {
			t.Errorf("lock file missing while held: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if !ran {
		t.Fatal("fn did not run")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("lock file still present after release: %v", err)
	}
}

func TestWithLockPropagatesError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.lock")
	wantErr := errors.New("boom")
	err := WithLock(context.Background(), path, time.Second, 0, func() error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("lock file left behind after fn error")
	}
}

func TestWithLockRemovesLockOnPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.lock")
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = WithLock(context.Background(), path, time.Second, 0, func() error {
			panic("agent misbehaved")
		})
	}()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("lock file left behind after panic")
	}
}

func TestWithLockTimesOutWhileHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.lock")

	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- WithLock(context.Background(), path, time.Second, 0, func() error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	start := time.Now()
	err := WithLock(context.Background(), path, 150*time.Millisecond, 10*time.Millisecond, func() error {
		t.Error("second holder entered critical section")
		return nil
	})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if te.Path != path {
		t.Errorf("TimeoutError.Path = %q", te.Path)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("timed out too early: %v", elapsed)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first holder failed: %v", err)
	}
}

func TestWithLockWaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.lock")

	inside := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- WithLock(context.Background(), path, time.Second, 0, func() error {
			close(inside)
			time.Sleep(60 * time.Millisecond)
			return nil
		})
	}()
	<-inside

	var order []string
	err := WithLock(context.Background(), path, 2*time.Second, 5*time.Millisecond, func() error {
		order = append(order, "second")
		return nil
	})
	if err != nil {
		t.Fatalf("second WithLock: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("first WithLock: %v", err)
	}
	if len(order) != 1 {
		t.Fatal("second critical section never ran")
	}
}

func TestWithLockReapsStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.lock")
	// PID far beyond pid_max: guaranteed dead.
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", 1<<30)), 0o644); err != nil {
		t.Fatal(err)
	}
	err := WithLock(context.Background(), path, 200*time.Millisecond, 10*time.Millisecond, func() error {
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock did not reap stale lock: %v", err)
	}
}

func TestWithLockKeepsUnparseableLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.lock")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := WithLock(context.Background(), path, 100*time.Millisecond, 10*time.Millisecond, func() error {
		return nil
	})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TimeoutError (unparseable lock must not be reaped)", err)
	}
}

func TestWithLockHonorsCancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.lock")
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	err := WithLock(ctx, path, 5*time.Second, 5*time.Millisecond, func() error {
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
