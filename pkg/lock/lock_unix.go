//go:build !windows

package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

func acquireFile(ctx context.Context, lockPath string, _ time.Duration) (func(), error) {
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, defaultFilePerm)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrLockUnavailable, lockPath, err)
	}

	fd := int(file.Fd())
	for {
		err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			if waitErr := waitForRetry(ctx, lockPath); waitErr != nil {
				_ = file.Close()
				return nil, waitErr
			}
			continue
		}
		_ = file.Close()
		return nil, fmt.Errorf("%w: flock %s: %v", ErrLockUnavailable, lockPath, err)
	}

	writeLockMetadata(file, lockPath)

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = unix.Flock(fd, unix.LOCK_UN)
			_ = file.Close()
		})
	}, nil
}
