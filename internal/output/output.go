// Package output writes finished containers to disk.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another build is writing the same file.
var ErrLocked = errors.New("output file is locked by another build")

// DefaultPath builds output/<manifest>_<timestamp>.heic.
func DefaultPath(dir, manifestPath string, now time.Time) string {
	base := strings.TrimSuffix(filepath.Base(manifestPath), filepath.Ext(manifestPath))
	if base == "" || base == "." {
		base = "wallpaper"
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.heic", base, now.Format("20060102_150405")))
}

// LockPath is the advisory lock file guarding path. It is left in place
// after a write.
func LockPath(path string) string {
	return path + ".lock"
}

// WriteFile replaces path with data atomically. The parent directory is
// created; readers see either the old file or the complete new one.
func WriteFile(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %q: %w", dir, err)
	}

	lock := flock.New(LockPath(path))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrLocked)
	}
	// The lock file stays on disk: unlinking it would let a waiter holding
	// the old inode and a newcomer creating a fresh one both own the lock.
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
