//go:build linux

package magicmount

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/hymofs/overlay"
)

// DefaultTempDir is used when no writable tmpfs candidate is found.
const DefaultTempDir = "/dev/.magic_mount"

// tempDirCandidates are probed in order; the first writable tmpfs wins.
var tempDirCandidates = []string{"/mnt/vendor", "/mnt", "/debug_ramdisk"}

// SelectTempDir picks the scratch directory the executor stages its tmpfs
// replacement trees under, preferring a real writable tmpfs among
// tempDirCandidates over DefaultTempDir (spec §4.6 scratch directory
// selection).
func SelectTempDir(debugf func(format string, args ...any)) string {
	if debugf == nil {
		debugf = func(string, ...any) {}
	}

	for _, candidate := range tempDirCandidates {
		if !overlay.IsRWTmpfs(candidate) {
			continue
		}

		dir := filepath.Join(candidate, ".magic_mount")
		debugf("magicmount: auto temp_dir: %s (from %s)", dir, candidate)

		return dir
	}

	debugf("magicmount: no rw tmpfs, using fallback: %s", DefaultTempDir)

	return DefaultTempDir
}

// EnterPID1MountNamespace joins PID 1's mount namespace via setns(2), so
// that mounts performed afterward propagate into the namespace every app
// and service process inherits from init.
func EnterPID1MountNamespace() error {
	f, err := os.Open("/proc/1/ns/mnt")
	if err != nil {
		return fmt.Errorf("magicmount: opening /proc/1/ns/mnt: %w", err)
	}
	defer f.Close()

	if err := unix.Setns(int(f.Fd()), 0); err != nil {
		return fmt.Errorf("magicmount: setns: %w", err)
	}

	return nil
}
