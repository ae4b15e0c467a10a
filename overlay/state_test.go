//go:build linux

package overlay

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRuntimeStateFrom_MissingFileYieldsZeroValue(t *testing.T) {
	s, err := loadRuntimeStateFrom(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("loadRuntimeStateFrom() error = %v", err)
	}
	if s != (RuntimeState{}) {
		t.Fatalf("loadRuntimeStateFrom() = %+v, want zero value", s)
	}
}

func TestRuntimeStateSaveTo_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "daemon_state.json")

	want := RuntimeState{
		StorageMode:     "kernel",
		MountPoint:      "/dev/.magic_mount",
		HymofsModuleIDs: []string{"mod1", "mod2"},
		PID:             1234,
	}

	if err := want.saveTo(path); err != nil {
		t.Fatalf("saveTo() error = %v", err)
	}

	got, err := loadRuntimeStateFrom(path)
	if err != nil {
		t.Fatalf("loadRuntimeStateFrom() error = %v", err)
	}

	if got.StorageMode != want.StorageMode || got.MountPoint != want.MountPoint || got.PID != want.PID {
		t.Fatalf("loadRuntimeStateFrom() = %+v, want %+v", got, want)
	}
	if len(got.HymofsModuleIDs) != 2 || got.HymofsModuleIDs[0] != "mod1" {
		t.Fatalf("HymofsModuleIDs = %v", got.HymofsModuleIDs)
	}
}

func TestLoadRuntimeStateFrom_InvalidJSONErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon_state.json")

	if err := MkdirAll(filepath.Dir(path)); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := loadRuntimeStateFrom(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
