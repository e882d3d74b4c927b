package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const lockFileName = "run.lock"

// LockInfo describes the harness process that owns a report directory.
type LockInfo struct {
	PID       int       `json:"pid"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

// LockedError is returned when a live run already holds the report directory.
type LockedError struct {
	Dir    string
	Holder LockInfo
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("report dir %s is in use by run %s (PID %d) since %s",
		e.Dir, e.Holder.RunID, e.Holder.PID, e.Holder.StartedAt.Format(time.RFC3339))
}

// RunLock is a held claim on a report directory for one run.
type RunLock struct {
	dir  string
	info LockInfo
}

// AcquireRunLock claims dir for the run runID so that two harness
// invocations in one checkout do not both spawn a full pool of scripts.
// A lock whose process is gone is reclaimed. A live holder yields a
// *LockedError.
func AcquireRunLock(dir, runID string) (*RunLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	lock := &RunLock{
		dir: dir,
		info: LockInfo{
			PID:       os.Getpid(),
			RunID:     runID,
			StartedAt: time.Now(),
		},
	}
	lockPath := lock.path()

	err := writeLock(lockPath, &lock.info)
	if err == nil {
		return lock, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create lock %s: %w", lockPath, err)
	}

	existing, readErr := ReadRunLock(dir)
	if readErr != nil {
		return nil, fmt.Errorf("%s is locked (could not read lock: %v)", dir, readErr)
	}
	if isProcessAlive(existing.PID) {
		return nil, &LockedError{Dir: dir, Holder: *existing}
	}

	slog.Warn("reclaiming stale run lock", "dir", dir, "stale_pid", existing.PID, "stale_run", existing.RunID, "run", runID)
	if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale lock: %w", err)
	}
	if err := writeLock(lockPath, &lock.info); err != nil {
		if errors.Is(err, os.ErrExist) {
			// another run reclaimed it first
			if holder, rerr := ReadRunLock(dir); rerr == nil {
				return nil, &LockedError{Dir: dir, Holder: *holder}
			}
		}
		return nil, fmt.Errorf("acquire after stale removal: %w", err)
	}
	return lock, nil
}

// RunID returns the run that holds the lock.
func (l *RunLock) RunID() string { return l.info.RunID }

// Release removes the lock file if it still belongs to this run. A lock
// reclaimed by another run in the meantime is left alone. Release is
// idempotent.
func (l *RunLock) Release() {
	current, err := ReadRunLock(l.dir)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err == nil && (current.RunID != l.info.RunID || current.PID != l.info.PID) {
		slog.Warn("run lock taken over, not releasing", "dir", l.dir, "run", l.info.RunID, "holder", current.RunID)
		return
	}
	if err := os.Remove(l.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to release run lock", "path", l.path(), "error", err)
	}
}

func (l *RunLock) path() string {
	return filepath.Join(l.dir, lockFileName)
}

// ReadRunLock reads the lock file from dir.
func ReadRunLock(dir string) (*LockInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, lockFileName))
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse lock: %w", err)
	}
	return &info, nil
}

// writeLock creates the lock file with O_EXCL so only one writer wins.
func writeLock(path string, info *LockInfo) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	encErr := json.NewEncoder(f).Encode(info)
	closeErr := f.Close()
	if encErr != nil {
		return encErr
	}
	return closeErr
}

// isProcessAlive checks if a process with the given PID exists.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks existence without delivering anything
	return proc.Signal(syscall.Signal(0)) == nil
}
