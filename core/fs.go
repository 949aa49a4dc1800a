package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pkt.systems/atelier/internal/logx"
	"pkt.systems/atelier/schema"
)

// binaryProbeSize is how much of an unknown file is inspected for NUL bytes.
const binaryProbeSize = 8 << 10

var textExtensions = map[string]bool{
	".csv": true, ".go": true, ".html": true, ".ini": true, ".js": true,
	".json": true, ".log": true, ".md": true, ".py": true, ".sh": true,
	".sql": true, ".toml": true, ".tsv": true, ".txt": true, ".xml": true,
	".yaml": true, ".yml": true,
}

var binaryExtensions = map[string]bool{
	".bin": true, ".gif": true, ".gz": true, ".jpeg": true, ".jpg": true,
	".parquet": true, ".pdf": true, ".png": true, ".pyc": true, ".so": true,
	".tar": true, ".webp": true, ".xlsx": true, ".zip": true,
}

func (s *service) ListDir(ctx context.Context, req schema.ListDirRequest) (schema.ListDirResponse, error) {
	if ctx == nil {
		return schema.ListDirResponse{}, errors.New("missing context")
	}
	guard, err := s.currentGuard()
	if err != nil {
		return schema.ListDirResponse{}, err
	}
	resolved, err := guard.ResolveExisting(req.Path)
	if err != nil {
		return schema.ListDirResponse{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return schema.ListDirResponse{}, err
	}
	if !info.IsDir() {
		return schema.ListDirResponse{}, schema.ErrNotADirectory
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return schema.ListDirResponse{}, err
	}
	items := make([]schema.FileInfo, 0, len(entries))
	for _, entry := range entries {
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		items = append(items, schema.FileInfo{
			Name:    entry.Name(),
			Path:    filepath.Join(resolved, entry.Name()),
			IsDir:   entry.IsDir(),
			Size:    fi.Size(),
			ModTime: fi.ModTime().Unix(),
		})
	}
	sortEntries(items)
	return schema.ListDirResponse{Path: resolved, Items: items}, nil
}

func (s *service) ReadFile(ctx context.Context, req schema.ReadFileRequest) (schema.ReadFileResponse, error) {
	if ctx == nil {
		return schema.ReadFileResponse{}, errors.New("missing context")
	}
	guard, err := s.currentGuard()
	if err != nil {
		return schema.ReadFileResponse{}, err
	}
	resolved, err := guard.ResolveExisting(req.Path)
	if err != nil {
		return schema.ReadFileResponse{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return schema.ReadFileResponse{}, err
	}
	if info.IsDir() {
		return schema.ReadFileResponse{}, schema.ErrIsADirectory
	}
	max := req.MaxBytes
	if max <= 0 || max > s.cfg.MaxReadBytes {
		max = s.cfg.MaxReadBytes
	}
	f, err := os.Open(resolved)
	if err != nil {
		return schema.ReadFileResponse{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, max))
	if err != nil {
		return schema.ReadFileResponse{}, err
	}
	resp := schema.ReadFileResponse{Path: resolved}
	if isBinary(resolved, data) {
		resp.Binary = true
		resp.ContentBase64 = base64.StdEncoding.EncodeToString(data)
	} else {
		resp.Text = string(data)
	}
	return resp, nil
}

func (s *service) WriteFile(ctx context.Context, req schema.WriteFileRequest) (schema.WriteFileResponse, error) {
	if ctx == nil {
		return schema.WriteFileResponse{}, errors.New("missing context")
	}
	if strings.TrimSpace(req.Path) == "" {
		return schema.WriteFileResponse{}, schema.ErrInvalidRequest
	}
	if req.Text != "" && req.ContentBase64 != "" {
		return schema.WriteFileResponse{}, schema.ErrInvalidRequest
	}
	payload := []byte(req.Text)
	if req.ContentBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ContentBase64)
		if err != nil {
			return schema.WriteFileResponse{}, schema.ErrInvalidRequest
		}
		payload = decoded
	}
	guard, err := s.currentGuard()
	if err != nil {
		return schema.WriteFileResponse{}, err
	}
	resolved, err := guard.Resolve(req.Path)
	if err != nil {
		return schema.WriteFileResponse{}, err
	}
	kind := schema.ChangeCreated
	if info, err := os.Stat(resolved); err == nil {
		if info.IsDir() {
			return schema.WriteFileResponse{}, schema.ErrIsADirectory
		}
		kind = schema.ChangeModified
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return schema.WriteFileResponse{}, err
	}
	// Mark before writing so the watcher's notification, which may arrive
	// concurrently, is already recognizable as our own echo.
	s.echo.Mark(resolved)
	if err := os.WriteFile(resolved, payload, 0o644); err != nil {
		s.echo.Forget(resolved)
		return schema.WriteFileResponse{}, err
	}
	log := logx.WithConn(ctx, req.Origin)
	log.Debug("service file write", "path", resolved, "bytes", len(payload), "kind", kind)
	s.sink.OnFileChange(schema.ChangeEvent{
		Path:      resolved,
		Kind:      kind,
		Origin:    req.Origin,
		Timestamp: time.Now(),
	})
	return schema.WriteFileResponse{Path: resolved}, nil
}

func (s *service) SearchFiles(ctx context.Context, req schema.SearchFilesRequest) (schema.SearchFilesResponse, error) {
	if ctx == nil {
		return schema.SearchFilesResponse{}, errors.New("missing context")
	}
	query := strings.ToLower(strings.TrimSpace(req.Query))
	if query == "" {
		return schema.SearchFilesResponse{}, schema.ErrInvalidRequest
	}
	guard, err := s.currentGuard()
	if err != nil {
		return schema.SearchFilesResponse{}, err
	}
	root, err := guard.ResolveExisting(req.Root)
	if err != nil {
		return schema.SearchFilesResponse{}, err
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return schema.SearchFilesResponse{}, schema.ErrNotADirectory
	}
	limit := req.Limit
	if limit <= 0 || limit > s.cfg.SearchLimit {
		limit = s.cfg.SearchLimit
	}
	var matches []schema.FileInfo
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := entry.Name()
		if entry.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
			return nil
		}
		if !strings.Contains(strings.ToLower(name), query) {
			return nil
		}
		fi, err := entry.Info()
		if err != nil {
			return nil
		}
		matches = append(matches, schema.FileInfo{
			Name:    name,
			Path:    path,
			IsDir:   false,
			Size:    fi.Size(),
			ModTime: fi.ModTime().Unix(),
		})
		if len(matches) >= limit {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return schema.SearchFilesResponse{}, err
	}
	return schema.SearchFilesResponse{Matches: matches}, nil
}

// buildTree walks root up to maxDepth levels, skipping hidden entries.
func buildTree(root string, maxDepth int) ([]schema.TreeNode, error) {
	return buildTreeLevel(root, maxDepth, 0)
}

func buildTreeLevel(dir string, maxDepth, depth int) ([]schema.TreeNode, error) {
	if depth >= maxDepth {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if depth == 0 {
			return nil, err
		}
		return nil, nil
	}
	nodes := make([]schema.TreeNode, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		node := schema.TreeNode{
			Name:  name,
			Path:  filepath.Join(dir, name),
			IsDir: entry.IsDir(),
		}
		if entry.IsDir() {
			children, err := buildTreeLevel(node.Path, maxDepth, depth+1)
			if err != nil {
				return nil, err
			}
			node.Children = children
		}
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].IsDir != nodes[j].IsDir {
			return nodes[i].IsDir
		}
		return nodes[i].Name < nodes[j].Name
	})
	return nodes, nil
}

func sortEntries(items []schema.FileInfo) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		return items[i].Name < items[j].Name
	})
}

// isBinary classifies content by extension first and falls back to probing
// the head for NUL bytes.
func isBinary(path string, data []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if textExtensions[ext] {
		return false
	}
	if binaryExtensions[ext] {
		return true
	}
	probe := data
	if len(probe) > binaryProbeSize {
		probe = probe[:binaryProbeSize]
	}
	return bytes.IndexByte(probe, 0) >= 0
}
