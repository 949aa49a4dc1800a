package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pkt.systems/atelier/schema"
)

func TestGuardResolveRelative(t *testing.T) {
	root := t.TempDir()
	g, err := NewGuard(root)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	got, err := g.Resolve("sub/file.txt")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if want := filepath.Join(g.Root(), "sub", "file.txt"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestGuardResolveEmptyIsRoot(t *testing.T) {
	g, err := NewGuard(t.TempDir())
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	for _, path := range []string{"", ".", "  "} {
		got, err := g.Resolve(path)
		if err != nil || got != g.Root() {
			t.Fatalf("Resolve(%q) = %q, %v; want root", path, got, err)
		}
	}
}

func TestGuardRejectsTraversal(t *testing.T) {
	g, err := NewGuard(t.TempDir())
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	for _, path := range []string{
		"..",
		"../outside.txt",
		"sub/../../outside.txt",
		"/etc/passwd",
	} {
		if _, err := g.Resolve(path); !errors.Is(err, schema.ErrPathOutsideWorkspace) {
			t.Fatalf("Resolve(%q): expected confinement error, got %v", path, err)
		}
	}
}

func TestGuardRejectsSiblingPrefix(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "proj")
	sibling := filepath.Join(parent, "proj2")
	for _, dir := range []string{root, sibling} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	g, err := NewGuard(root)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	// The sibling shares the root as a string prefix but not as a path
	// segment; it must be rejected.
	if _, err := g.Resolve(filepath.Join(sibling, "data.csv")); !errors.Is(err, schema.ErrPathOutsideWorkspace) {
		t.Fatalf("expected sibling prefix rejection, got %v", err)
	}
	if _, err := g.Resolve(filepath.Join(root, "data.csv")); err != nil {
		t.Fatalf("expected in-root path to resolve, got %v", err)
	}
}

func TestGuardResolveExistingFollowsSymlinkOut(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "proj")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	secret := filepath.Join(parent, "secret.txt")
	if err := os.WriteFile(secret, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	link := filepath.Join(root, "escape")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}
	g, err := NewGuard(root)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	if _, err := g.ResolveExisting("escape"); !errors.Is(err, schema.ErrPathOutsideWorkspace) {
		t.Fatalf("expected symlink escape rejection, got %v", err)
	}
}

func TestGuardResolveExistingMissingFile(t *testing.T) {
	g, err := NewGuard(t.TempDir())
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	if _, err := g.ResolveExisting("nope.txt"); !errors.Is(err, schema.ErrFileNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewGuardRequiresDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewGuard(file); !errors.Is(err, schema.ErrNotADirectory) {
		t.Fatalf("expected directory requirement, got %v", err)
	}
	if _, err := NewGuard(filepath.Join(dir, "missing")); !errors.Is(err, schema.ErrFileNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
