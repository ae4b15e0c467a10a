//go:build linux

package kernel

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePathForHymofs_ExistingParent(t *testing.T) {
	dir := t.TempDir()

	got := ResolvePathForHymofs(filepath.Join(dir, "new_file.txt"))
	want := filepath.Join(dir, "new_file.txt")

	if got != want {
		t.Fatalf("ResolvePathForHymofs() = %q, want %q", got, want)
	}
}

func TestResolvePathForHymofs_SymlinkedAncestor(t *testing.T) {
	dir := t.TempDir()

	real := filepath.Join(dir, "real")
	if err := os.Mkdir(real, 0o755); err != nil {
		t.Fatal(err)
	}

	link := filepath.Join(dir, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Fatal(err)
	}

	got := ResolvePathForHymofs(filepath.Join(link, "leaf.txt"))
	want := filepath.Join(real, "leaf.txt")

	if got != want {
		t.Fatalf("ResolvePathForHymofs() = %q, want %q", got, want)
	}
}

func TestResolvePathForHymofs_NonExistentAncestorChain(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "a", "b", "c", "leaf.txt")

	got := ResolvePathForHymofs(path)
	want := filepath.Join(dir, "a", "b", "c", "leaf.txt")

	if got != want {
		t.Fatalf("ResolvePathForHymofs() = %q, want %q", got, want)
	}
}

func TestResolvePathForHymofs_NoParent(t *testing.T) {
	if got := ResolvePathForHymofs("/"); got != "/" {
		t.Fatalf("ResolvePathForHymofs(%q) = %q, want unchanged", "/", got)
	}
}
