// Package lockfile guarantees a single running instance per state
// directory through a PID file.
package lockfile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrLocked is returned when a live process already holds the lock.
var ErrLocked = errors.New("lockfile: another instance is running")

// Lock is a held PID lock.
type Lock struct {
	path string
	pid  int
}

// Acquire creates the lock file at path holding the current PID. A lock
// left behind by a dead process is replaced.
func Acquire(path string, logger *slog.Logger) (*Lock, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("lockfile: %w", err)
	}

	pid := os.Getpid()
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(pid))
			cerr := f.Close()
			if err := errors.Join(werr, cerr); err != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("lockfile: write %s: %w", path, err)
			}
			return &Lock{path: path, pid: pid}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("lockfile: create %s: %w", path, err)
		}

		holder, readErr := readPID(path)
		if readErr == nil && holder != pid && alive(holder) {
			return nil, fmt.Errorf("%w (pid %d)", ErrLocked, holder)
		}
		logger.Warn("lockfile: removing stale lock", "path", path, "pid", holder)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("lockfile: remove stale %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("%w: lost race for %s", ErrLocked, path)
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release deletes the lock file if it still belongs to this process.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	holder, err := readPID(l.path)
	if err != nil || holder != l.pid {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("lockfile: release: %w", err)
	}
	return nil
}

func readPID(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("lockfile: invalid pid in %s", path)
	}
	return pid, nil
}

// alive reports whether a process with pid exists. EPERM means it exists
// but belongs to another user.
func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
