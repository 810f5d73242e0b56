package store

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// FileLock guards a workspace directory against concurrent instances.
type FileLock struct {
	fileLock   *flock.Flock
	lockPath   string
	acquiredAt time.Time
	mu         sync.RWMutex
}

type FileLockConfig struct {
	LockTimeout  time.Duration
	LockRetry    time.Duration
	LockMaxRetry int
}

func NewFileLock(basePath string, cfg FileLockConfig) (*FileLock, error) {
	lockPath := filepath.Join(basePath, "workspace.lock")

	fl := &FileLock{
		fileLock: flock.New(lockPath),
		lockPath: lockPath,
	}

	if err := fl.acquireWithRetry(cfg); err != nil {
		return nil, err
	}

	fl.acquiredAt = time.Now()
	slog.Info("File lock acquired", "path", lockPath)
	return fl, nil
}

func (fl *FileLock) acquireWithRetry(cfg FileLockConfig) error {
	deadline := time.Now().Add(cfg.LockTimeout)
	for i := 0; i < cfg.LockMaxRetry; i++ {
		locked, err := fl.fileLock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to attempt lock: %w", err)
		}
		if locked {
			return nil
		}

		if time.Now().After(deadline) {
			break
		}
		if i < cfg.LockMaxRetry-1 {
			time.Sleep(cfg.LockRetry)
		}
	}

	return fmt.Errorf("workspace is locked by another instance (timeout after %v)", cfg.LockTimeout)
}

func (fl *FileLock) Unlock() {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.fileLock == nil {
		slog.Warn("FileLock already unlocked", "path", fl.lockPath)
		return
	}

	held := time.Since(fl.acquiredAt)
	if err := fl.fileLock.Unlock(); err != nil {
		slog.Error("Failed to release file lock", "path", fl.lockPath, "error", err)
	} else {
		slog.Info("File lock released", "path", fl.lockPath, "held_duration_ms", held.Milliseconds())
	}

	fl.fileLock = nil
}

func (fl *FileLock) IsLocked() bool {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.fileLock != nil
}
