package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileLocker takes advisory locks on <dir>/<key>.lock. The kernel drops the
// lock if the holder dies, so ttl is ignored.
type FileLocker struct {
	dir string
}

// NewFileLocker creates a locker that keeps its lock files in dir.
func NewFileLocker(dir string) *FileLocker {
	return &FileLocker{dir: dir}
}

// Lock polls a non-blocking exclusive lock until it succeeds or ctx ends.
func (l *FileLocker) Lock(ctx context.Context, key string, _ time.Duration) (UnlockFunc, error) {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	path := filepath.Join(l.dir, key+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		ok, err := tryLockFile(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w %s: %w", ErrLockAcquire, path, err)
		}
		if ok {
			return func(context.Context) error {
				unlockErr := unlockFile(f)
				closeErr := f.Close()
				if unlockErr != nil {
					return unlockErr
				}
				return closeErr
			}, nil
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("%w %s: %w", ErrLockAcquire, path, ctx.Err())
		case <-ticker.C:
		}
	}
}
