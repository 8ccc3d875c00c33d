// Package lockfile guards a target against concurrent imports with an
// advisory lock file that also records who holds it.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLockBusy is returned when another process holds the lock.
var ErrLockBusy = errors.New("lock already held by another process")

// LockInfo is written into the lock file by its holder.
type LockInfo struct {
	PID       int       `json:"pid"`
	Target    string    `json:"target"`
	Version   string    `json:"version,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// BusyError reports the current holder of a busy lock. Info is nil when
// the holder's record could not be read.
type BusyError struct {
	Path string
	Info *LockInfo
}

func (e *BusyError) Error() string {
	if e.Info == nil {
		return fmt.Sprintf("%s: %v", e.Path, ErrLockBusy)
	}
	return fmt.Sprintf("import into %s already running (pid %d, started %s)",
		e.Info.Target, e.Info.PID, e.Info.StartedAt.Format(time.RFC3339))
}

func (e *BusyError) Unwrap() error { return ErrLockBusy }

// Lock is a held lock file.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes the lock at path without waiting. The PID and start time of
// info are filled in when zero.
func Acquire(path string, info LockInfo) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600) // #nosec G304 - lock path from config
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLockBusy) {
			holder, _ := ReadLockInfo(path)
			return nil, &BusyError{Path: path, Info: holder}
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	if info.PID == 0 {
		info.PID = os.Getpid()
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now().UTC()
	}
	data, err := json.Marshal(info)
	if err == nil {
		if err = f.Truncate(0); err == nil {
			_, err = f.WriteAt(data, 0)
		}
	}
	if err != nil {
		_ = flockUnlock(f)
		_ = f.Close()
		return nil, fmt.Errorf("writing lock file: %w", err)
	}
	return &Lock{f: f, path: path}, nil
}

// Release removes the lock file and unlocks it.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	// remove while still locked so a waiting process never sees our record
	rmErr := os.Remove(l.path)
	unlockErr := flockUnlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		// open files cannot be removed on Windows
		if rmErr = os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return rmErr
		}
	}
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}

// ReadLockInfo reads the record left in a lock file.
func ReadLockInfo(path string) (*LockInfo, error) {
	data, err := os.ReadFile(path) // #nosec G304 - lock path from config
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parsing lock file %s: %w", path, err)
	}
	return &info, nil
}
