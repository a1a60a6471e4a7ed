package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLocker is an advisory flock on a file, shared by processes on one host.
type FileLocker struct {
	fsLock *flock.Flock
}

func NewFileLocker(path string) *FileLocker {
	return &FileLocker{fsLock: flock.New(path)}
}

// Path returns the lock file path.
func (l *FileLocker) Path() string {
	return l.fsLock.Path()
}

func (l *FileLocker) Acquire(_ context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.fsLock.Path()), 0o755); err != nil {
		return fmt.Errorf("cannot create lock directory: %w", err)
	}
	if locked, err := l.fsLock.TryLock(); err != nil {
		return fmt.Errorf(`cannot acquire lock "%s": %w`, l.fsLock.Path(), err)
	} else if !locked {
		return fmt.Errorf(`cannot acquire lock "%s": %w`, l.fsLock.Path(), ErrLockHeld)
	}
	return nil
}

func (l *FileLocker) Release(_ context.Context) error {
	if !l.fsLock.Locked() {
		return ErrNotHeld
	}
	if err := l.fsLock.Unlock(); err != nil {
		return fmt.Errorf(`cannot release lock "%s": %w`, l.fsLock.Path(), err)
	}
	return nil
}
