package jobqueue

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// AdvisoryLock is the file-system lock guarding a target directory:
// the driver acquires it at a well-known path before beginning a
// build and releases it on completion, so the directory is treated as
// exclusive to one invocation.
type AdvisoryLock struct {
	file *os.File
}

// Acquire opens (creating if needed) path and takes a non-blocking
// exclusive flock on it. A held lock returns an error, since flock
// carries no owner metadata to name the holder.
func Acquire(path string) (*AdvisoryLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jobqueue: opening lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("jobqueue: target directory is locked by another invocation (%s): %w", path, err)
	}

	return &AdvisoryLock{file: f}, nil
}

// Release unlocks and closes the lock file.
func (l *AdvisoryLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
