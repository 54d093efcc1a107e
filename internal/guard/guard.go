// Package guard provides the single cross-process coordination
// primitive: an exclusive advisory lock keyed by bot credential,
// ensuring at most one process dispatches updates for it on this host.
package guard

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// ErrAlreadyHeld is returned when another process holds the lock.
// HolderPID is best-effort: 0 when the lock file could not be read.
type ErrAlreadyHeld struct {
	Path      string
	HolderPID int
}

func (e *ErrAlreadyHeld) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("instance lock %s held by pid %d", e.Path, e.HolderPID)
	}
	return fmt.Sprintf("instance lock %s held by another process", e.Path)
}

// Guard is a held single-instance lock. The kernel releases the
// advisory lock on process exit even if Release is never called.
type Guard struct {
	lock *flock.Flock
	pid  int
}

// LockPath returns the well-known lock file path for a credential. The
// token never appears in the path, only its hash.
func LockPath(token string) string {
	sum := sha1.Sum([]byte(token))
	return filepath.Join(os.TempDir(), "tgproxybot-"+hex.EncodeToString(sum[:8])+".lock")
}

// Acquire takes an exclusive non-blocking lock on path and writes the
// holder PID into the file. On contention it returns *ErrAlreadyHeld.
func Acquire(path string) (*Guard, error) {
	lock := flock.New(path)

	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !ok {
		return nil, &ErrAlreadyHeld{Path: path, HolderPID: readPID(path)}
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("write lock file: %w", err)
	}

	return &Guard{lock: lock, pid: pid}, nil
}

// Release drops the lock and removes the file. It refuses to touch a
// lock whose on-disk PID is not its own; that guards against a
// stale-cleanup race with a newer holder.
func (g *Guard) Release() error {
	if g == nil || g.lock == nil {
		return nil
	}

	if onDisk := readPID(g.lock.Path()); onDisk != 0 && onDisk != g.pid {
		log.Printf("[Guard] lock file pid %d != own pid %d, leaving file in place", onDisk, g.pid)
		return g.lock.Unlock()
	}

	if err := g.lock.Unlock(); err != nil {
		return fmt.Errorf("release instance lock: %w", err)
	}

	if err := os.Remove(g.lock.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}

	return nil
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}

	return pid
}
