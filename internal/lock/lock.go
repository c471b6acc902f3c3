// Package lock provides cross-process mutual exclusion for the shared guest
// file. The registry always serializes writers inside one process; a Locker
// extends that to every process touching the same artifact.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLockAcquire is returned when a lock cannot be taken.
var ErrLockAcquire = errors.New("failed to acquire lock")

// UnlockFunc releases a lock obtained from a Locker.
type UnlockFunc func(ctx context.Context) error

// Locker hands out exclusive locks by key.
type Locker interface {
	// Lock blocks until the lock for key is held or ctx is done. The ttl is
	// a hint for backends that expire abandoned locks; backends whose locks
	// die with the process ignore it.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

const retryInterval = 50 * time.Millisecond
