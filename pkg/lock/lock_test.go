package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireIsExclusiveUntilReleased(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "patrol.lck")
	l := NewFileLock(path)

	release, err := l.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	start := time.Now()
	_, err = NewFileLock(path).Acquire(context.Background(), 100*time.Millisecond)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("second acquire err = %v, want ErrLockTimeout", err)
	}
	if waited := time.Since(start); waited < 100*time.Millisecond {
		t.Fatalf("gave up after %v, before the timeout", waited)
	}

	release()
	release()

	again, err := l.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again()
}

func TestAcquireHonoursCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patrol.lck")
	release, err := NewFileLock(path).Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFileLock(path).Acquire(ctx, time.Minute); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("err = %v, want ErrLockTimeout", err)
	}
}

func TestAcquireRejectsEmptyPath(t *testing.T) {
	if _, err := NewFileLock("").Acquire(context.Background(), time.Second); !errors.Is(err, ErrLockUnavailable) {
		t.Fatalf("err = %v, want ErrLockUnavailable", err)
	}
}

func writeHolder(t *testing.T, path string, acquired time.Time) {
	t.Helper()
	body := `{"pid":4242,"hostname":"old-host","acquired_at":"` + acquired.UTC().Format(time.RFC3339Nano) + `"}`
	if err := os.WriteFile(path, []byte(body+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestBreakIfStaleRemovesAbandonedLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patrol.lck")
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	writeHolder(t, path, now.Add(-10*time.Minute))
	if breakIfStale(path, 15*time.Minute, now) {
		t.Fatal("broke a lock that is still within its window")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("lock file gone: %v", err)
	}
	if breakIfStale(path, 0, now) {
		t.Fatal("broke a lock with stale detection disabled")
	}

	writeHolder(t, path, now.Add(-time.Hour))
	if !breakIfStale(path, 15*time.Minute, now) {
		t.Fatal("abandoned lock was not broken")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stat after break = %v, want not exist", err)
	}
	if breakIfStale(path, 15*time.Minute, now) {
		t.Fatal("reported a break for a missing file")
	}
}

func TestAcquiredAtFallsBackToModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patrol.lck")
	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
	at, err := acquiredAt(path)
	if err != nil {
		t.Fatal(err)
	}
	if !at.Equal(old) {
		t.Fatalf("acquiredAt = %v, want mtime %v", at, old)
	}
	if !breakIfStale(path, time.Hour, time.Now()) {
		t.Fatal("unreadable stale lock was not broken")
	}
}

func TestLockFileRecordsHolderMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patrol.lck")
	release, err := NewFileLock(path).WithStaleAfter(time.Minute).Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	at, err := acquiredAt(path)
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(at) > time.Minute {
		t.Fatalf("acquired_at %v not recorded at acquisition", at)
	}
}
