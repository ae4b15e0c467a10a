//go:build linux

package magicmount

import (
	"strings"
	"testing"
)

func TestSelectTempDir_FallsBackWhenNoCandidateIsRWTmpfs(t *testing.T) {
	// None of tempDirCandidates exist as a writable tmpfs in a test sandbox,
	// so selection must fall back to DefaultTempDir.
	got := SelectTempDir(nil)
	if got != DefaultTempDir {
		t.Fatalf("SelectTempDir() = %q, want fallback %q", got, DefaultTempDir)
	}
}

func TestSelectTempDir_NilDebugfDoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("SelectTempDir panicked: %v", r)
		}
	}()

	_ = SelectTempDir(nil)
}

func TestSelectTempDir_LogsChosenCandidate(t *testing.T) {
	var logged []string
	debugf := func(format string, args ...any) {
		logged = append(logged, format)
	}

	got := SelectTempDir(debugf)
	if got == "" {
		t.Fatal("SelectTempDir() returned empty string")
	}
	if len(logged) != 1 {
		t.Fatalf("expected exactly one debug log line, got %v", logged)
	}
	if !strings.Contains(logged[0], "magicmount:") {
		t.Fatalf("log line = %q, want a magicmount-prefixed message", logged[0])
	}
}
