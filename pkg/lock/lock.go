// Package lock keeps two patrol cycles from running at once, across
// processes, using an exclusive lock on a file next to the store.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dotsetgreg/deskpatrol/pkg/logger"
)

var (
	ErrLockUnavailable = errors.New("lock unavailable")
	ErrLockTimeout     = errors.New("lock wait timed out")
)

const (
	defaultFilePerm = 0o600
	lockRetryWait   = 25 * time.Millisecond
)

type FileLock struct {
	path       string
	staleAfter time.Duration
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// WithStaleAfter lets Acquire break a lock file whose holder recorded an
// acquisition older than d. It only matters where the lock is a plain
// O_EXCL file (Windows); flock is dropped by the kernel when a holder dies.
func (l *FileLock) WithStaleAfter(d time.Duration) *FileLock {
	l.staleAfter = d
	return l
}

func (l *FileLock) Path() string { return l.path }

// Acquire waits up to timeout for the lock. The returned release func is
// safe to call more than once.
func (l *FileLock) Acquire(ctx context.Context, timeout time.Duration) (func(), error) {
	if strings.TrimSpace(l.path) == "" {
		return nil, fmt.Errorf("%w: empty lock path", ErrLockUnavailable)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create dir for %s: %v", ErrLockUnavailable, l.path, err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return acquireFile(ctx, l.path, l.staleAfter)
}

func writeLockMetadata(file *os.File, lockPath string) {
	if file == nil {
		return
	}
	host, _ := os.Hostname()
	payload := map[string]any{
		"lock_path":   lockPath,
		"pid":         os.Getpid(),
		"hostname":    host,
		"acquired_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_ = file.Truncate(0)
	_, _ = file.Seek(0, 0)
	_, _ = file.Write(data)
	_ = file.Sync()
}

type lockMetadata struct {
	PID        int    `json:"pid"`
	Hostname   string `json:"hostname"`
	AcquiredAt string `json:"acquired_at"`
}

// acquiredAt reads when the current holder took the lock, falling back to
// the file's mtime when the metadata is missing or unreadable.
func acquiredAt(lockPath string) (time.Time, error) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return time.Time{}, err
	}
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return info.ModTime(), nil
	}
	var meta lockMetadata
	if json.Unmarshal(data, &meta) != nil {
		return info.ModTime(), nil
	}
	at, err := time.Parse(time.RFC3339Nano, meta.AcquiredAt)
	if err != nil {
		return info.ModTime(), nil
	}
	return at, nil
}

// breakIfStale removes lockPath when its holder acquired it more than
// staleAfter before now. It reports whether the file was removed.
func breakIfStale(lockPath string, staleAfter time.Duration, now time.Time) bool {
	if staleAfter <= 0 {
		return false
	}
	at, err := acquiredAt(lockPath)
	if err != nil || now.Sub(at) <= staleAfter {
		return false
	}
	if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false
	}
	logger.WarnCF("lock", "Broke stale lock file", map[string]any{
		"path":        lockPath,
		"acquired_at": at.Format(time.RFC3339),
	})
	return true
}

func waitForRetry(ctx context.Context, lockPath string) error {
	timer := time.NewTimer(lockRetryWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", ErrLockTimeout, lockPath, ctx.Err())
	case <-timer.C:
		return nil
	}
}
