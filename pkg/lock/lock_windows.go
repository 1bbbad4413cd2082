//go:build windows

package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

func acquireFile(ctx context.Context, lockPath string, staleAfter time.Duration) (func(), error) {
	for {
		file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, defaultFilePerm)
		if err == nil {
			writeLockMetadata(file, lockPath)
			var once sync.Once
			return func() {
				once.Do(func() {
					_ = file.Close()
					_ = os.Remove(lockPath)
				})
			}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: open %s: %v", ErrLockUnavailable, lockPath, err)
		}
		if breakIfStale(lockPath, staleAfter, time.Now()) {
			continue
		}
		if waitErr := waitForRetry(ctx, lockPath); waitErr != nil {
			return nil, waitErr
		}
	}
}
