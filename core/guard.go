package core

import (
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/atelier/schema"
)

// Guard confines all filesystem access to a workspace root. Containment is
// decided on path segments, so a sibling like /data/proj2 is outside a root
// of /data/proj even though it shares the string prefix.
type Guard struct {
	root string
}

// NewGuard resolves root (following symlinks) and verifies it is a directory.
func NewGuard(root string) (*Guard, error) {
	if strings.TrimSpace(root) == "" {
		return nil, schema.ErrInvalidRequest
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, schema.ErrFileNotFound
		}
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, schema.ErrNotADirectory
	}
	return &Guard{root: resolved}, nil
}

// Root returns the resolved workspace root.
func (g *Guard) Root() string {
	return g.root
}

// Resolve maps a client-supplied path, absolute or workspace-relative, to a
// cleaned absolute path and rejects anything that escapes the root. The check
// is lexical; use ResolveExisting when the target must also be followed
// through symlinks.
func (g *Guard) Resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "." {
		return g.root, nil
	}
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(g.root, p)
	}
	p = filepath.Clean(p)
	if !g.contains(p) {
		return "", schema.ErrPathOutsideWorkspace
	}
	return p, nil
}

// ResolveExisting resolves path, follows symlinks and verifies the real
// location is still inside the root. A symlink pointing out of the workspace
// is rejected even though its own path is inside.
func (g *Guard) ResolveExisting(path string) (string, error) {
	p, err := g.Resolve(path)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", schema.ErrFileNotFound
		}
		return "", err
	}
	if !g.contains(real) {
		return "", schema.ErrPathOutsideWorkspace
	}
	return real, nil
}

func (g *Guard) contains(p string) bool {
	rel, err := filepath.Rel(g.root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
