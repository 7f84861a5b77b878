// Package lock serializes organization passes over the same root across
// processes using an advisory file lock.
package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the lock for a root
var ErrLocked = errors.New("another datesort run is already organizing this directory")

// RunLock is a held lock for one root
type RunLock struct {
	path string
	lock *flock.Flock
}

// PathFor returns the lock file used for root inside lockDir
func PathFor(lockDir, root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return filepath.Join(lockDir, "datesort-"+hex.EncodeToString(sum[:])[:16]+".lock")
}

// Acquire takes the lock for root without blocking
func Acquire(lockDir, root string) (*RunLock, error) {
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	path := PathFor(lockDir, root)
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", root, ErrLocked)
	}

	return &RunLock{path: path, lock: fl}, nil
}

// Path returns the lock file path
func (l *RunLock) Path() string {
	return l.path
}

// Release unlocks and is safe to call more than once
func (l *RunLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
