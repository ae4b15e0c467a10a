//go:build linux

package overlay

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// JoinPath joins base and name the way the original C helper does: if name
// is empty, base is returned unchanged; otherwise the two are joined with a
// single separator regardless of whether base already ends in one.
//
// The join is done by filepath.Join, so the result is cleaned: "." and ".."
// segments are resolved lexically and repeated separators collapsed.
func JoinPath(base, name string) string {
	if name == "" {
		return base
	}

	return filepath.Join(base, name)
}

// Exists reports whether path exists, following symlinks.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory, following symlinks.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsSymlink reports whether path exists and is itself a symlink (not
// resolved).
func IsSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// MkdirAll creates dir and any missing parents with mode 0o755, returning nil
// if dir already exists and is a directory.
func MkdirAll(dir string) error {
	if IsDir(dir) {
		return nil
	}

	return os.MkdirAll(dir, 0o755)
}

// IsRWTmpfs reports whether path is a directory backed by a writable tmpfs
// mount: a real tmpfs (checked via statfs's magic number), not merely any
// writable directory.
//
// Used by the bind-mount planner to pick a scratch directory for its
// tmpfs-backed union realization (see magicmount.SelectTempDir).
func IsRWTmpfs(path string) bool {
	if !IsDir(path) {
		return false
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return false
	}

	if int64(stat.Type) != unix.TMPFS_MAGIC {
		return false
	}

	probe, err := os.CreateTemp(path, ".test_")
	if err != nil {
		return false
	}

	name := probe.Name()
	probe.Close()
	os.Remove(name)

	return true
}
