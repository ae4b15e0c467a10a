//go:build linux

package overlay

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// hymoSyscallNr is the syscall number the out-of-tree module hooks, passed
// to insmod as a module parameter.
const hymoSyscallNr = 142

// IsLKMLoaded reports whether the kernel shim module is loaded, by way of
// the same handshake kernel.Client.IsAvailable uses. Callers that already
// hold a kernel.Client should prefer its IsAvailable method directly; this
// exists for CLI paths that only need a yes/no without constructing one.
func IsLKMLoaded(client KernelHider) bool {
	return client != nil && client.IsAvailable()
}

// LoadLKM inserts the kernel shim module via insmod, passing the expected
// hymo_syscall_nr module parameter. It returns an error if LKMPath doesn't
// exist or insmod exits non-zero.
func LoadLKM() error {
	if !Exists(LKMPath) {
		return fmt.Errorf("overlay: kernel module %q not found", LKMPath)
	}

	cmd := exec.Command("insmod", LKMPath, fmt.Sprintf("hymo_syscall_nr=%d", hymoSyscallNr))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("overlay: insmod %q: %w", LKMPath, err)
	}

	return nil
}

// RuleClearer is the minimal kernel-control-client surface UnloadLKM needs
// beyond KernelHider. kernel.Client satisfies this interface.
type RuleClearer interface {
	IsAvailable() bool
	ClearRules() bool
}

// UnloadLKM clears every kernel rule (if the shim is currently reachable)
// and then removes the module via rmmod.
func UnloadLKM(client RuleClearer) error {
	if client != nil && client.IsAvailable() {
		client.ClearRules()
	}

	cmd := exec.Command("rmmod", "hymofs_lkm")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("overlay: rmmod hymofs_lkm: %w", err)
	}

	return nil
}

// SetLKMAutoload persists whether the boot sequence should auto-load the
// kernel shim module, writing "1" or "0" to LKMAutoloadFile.
func SetLKMAutoload(on bool) error {
	return setLKMAutoloadAt(LKMAutoloadFile, on)
}

func setLKMAutoloadAt(path string, on bool) error {
	dir := filepath.Dir(path)
	if err := MkdirAll(dir); err != nil {
		return fmt.Errorf("overlay: creating %q: %w", dir, err)
	}

	content := "0"
	if on {
		content = "1"
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("overlay: writing %q: %w", path, err)
	}

	return nil
}

// GetLKMAutoload reads LKMAutoloadFile's first line. A missing or empty file
// defaults to true ("on when absent"): the shim should auto-load unless
// explicitly disabled.
func GetLKMAutoload() bool {
	return getLKMAutoloadAt(LKMAutoloadFile)
}

func getLKMAutoloadAt(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return true
	}

	v := strings.TrimSpace(scanner.Text())
	if v == "" {
		return true
	}

	return v == "1" || v == "on" || v == "true"
}
