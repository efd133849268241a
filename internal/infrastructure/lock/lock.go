// Package lock provides the process-wide exclusion lock that stops two runs
// of the backup job from overlapping.
package lock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another process already holds the lock.
var ErrLocked = errors.New("another backup run holds the lock")

// Lock is an exclusive flock(2) on a file. The kernel drops it when the
// holding process exits, however it exits.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes the lock on path without blocking. Every invocation of the
// same job must use the same path to contend on it.
func Acquire(path string) (*Lock, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock reference %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	return &Lock{path: path, file: file}, nil
}

func (l *Lock) Path() string {
	return l.path
}

// Release unlocks early. Normal runs rely on process exit instead.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Self returns the path of the running executable, the default lock reference.
func Self() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable: %w", err)
	}
	return exe, nil
}
