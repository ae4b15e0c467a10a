//go:build linux

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/hymofs/overlay"
)

func TestCmdMagicMount_ApplyWithoutRootIsRejected(t *testing.T) {
	if unix.Geteuid() == 0 {
		t.Skip("test requires a non-root euid to exercise the guard")
	}

	dir := t.TempDir()
	// A module with content, so the command gets past the empty-tree exit
	// and reaches the --apply guard.
	binDir := filepath.Join(dir, "mod1", "system", "bin")
	if err := overlay.MkdirAll(binDir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(binDir, "foo"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Config{ModuleDir: dir, StorageRoot: dir}

	var stdout, stderr bytes.Buffer

	code := cmdMagicMount(&stdout, &stderr, cfg, []string{"--apply"}, nil)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "must run as root") {
		t.Fatalf("stderr = %q, want a root-required message", stderr.String())
	}
}

func TestCmdMagicMount_NoModulesSkipsApplyEntirely(t *testing.T) {
	dir := t.TempDir()
	if err := overlay.MkdirAll(dir); err != nil {
		t.Fatal(err)
	}
	cfg := Config{ModuleDir: dir, StorageRoot: dir}

	var stdout, stderr bytes.Buffer

	code := cmdMagicMount(&stdout, &stderr, cfg, []string{"--apply"}, nil)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(stdout.String(), "nothing to mount") {
		t.Fatalf("stdout = %q, want nothing-to-mount message", stdout.String())
	}
}
