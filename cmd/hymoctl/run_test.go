//go:build linux

package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRun_NoArgsShowsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := Run(&stdout, &stderr, []string{"hymoctl"})
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "usage:") {
		t.Fatalf("stderr = %q, want usage text", stderr.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := Run(&stdout, &stderr, []string{"hymoctl", "bogus"})
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "unknown command") {
		t.Fatalf("stderr = %q, want unknown command message", stderr.String())
	}
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := Run(&stdout, &stderr, []string{"hymoctl", "--help"})
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(stdout.String(), "usage:") {
		t.Fatalf("stdout = %q, want usage text", stdout.String())
	}
}

func TestRun_Status_NoKernelShimPresent(t *testing.T) {
	var stdout, stderr bytes.Buffer

	// In a test sandbox the kernel shim is never present; status should
	// report that cleanly rather than erroring.
	code := Run(&stdout, &stderr, []string{"hymoctl", "status"})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1 (shim not present)", code)
	}
	if !strings.Contains(stdout.String(), "kernel shim:") {
		t.Fatalf("stdout = %q, want status line", stdout.String())
	}
}
