package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	derrors "github.com/Aman-CERP/docrag/internal/errors"
)

// lockRetryDelay is how often a blocked Lock polls.
const lockRetryDelay = 200 * time.Millisecond

// FileLock serializes builds of one corpus across processes.
// The lock file lives beside the corpus directory so it survives the
// directory swap at the end of a build.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewBuildLock returns the lock for corpus name under dataDir:
// <dataDir>/.<name>.build.lock
func NewBuildLock(dataDir, name string) *FileLock {
	path := filepath.Join(dataDir, "."+name+".build.lock")
	return &FileLock{
		path:  path,
		flock: flock.New(path),
	}
}

// Lock waits for the lock until ctx is done.
func (l *FileLock) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !acquired {
		return derrors.New(derrors.ErrCodeBuildLocked,
			"another build of this corpus is running", err).
			WithDetail("lock", l.path)
	}
	l.locked = true
	return nil
}

// TryLock attempts to acquire the lock without blocking.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// IsLocked reports whether this handle holds the lock.
func (l *FileLock) IsLocked() bool {
	return l.locked
}
