package schema

import "time"

// ConnID identifies an observer connection for its lifetime. A reconnecting
// client gets a fresh id; ids are never reused.
type ConnID string

// ConnState tracks the observer connection lifecycle.
type ConnState string

const (
	// ConnConnecting marks a registered connection whose transport handshake
	// is still in flight. Broadcasts skip it.
	ConnConnecting ConnState = "connecting"
	// ConnActive marks a registered connection eligible for broadcasts.
	ConnActive ConnState = "active"
	// ConnClosed marks a connection awaiting removal. Closed connections are never resurrected.
	ConnClosed ConnState = "closed"
)

// ChangeKind classifies a filesystem mutation.
type ChangeKind string

const (
	// ChangeCreated indicates a new file appeared.
	ChangeCreated ChangeKind = "created"
	// ChangeModified indicates an existing file was written.
	ChangeModified ChangeKind = "modified"
	// ChangeDeleted indicates a file was removed.
	ChangeDeleted ChangeKind = "deleted"
	// ChangeMoved indicates a file was renamed or moved away.
	ChangeMoved ChangeKind = "moved"
)

// ChangeEvent describes a single filesystem mutation under the workspace root.
// Origin carries the connection that caused the mutation, empty for foreign edits.
type ChangeEvent struct {
	Path      string
	Kind      ChangeKind
	Origin    ConnID
	Timestamp time.Time
}

// FileInfo describes a directory entry.
type FileInfo struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	IsDir   bool   `json:"is_dir"`
	Size    int64  `json:"size"`
	ModTime int64  `json:"mtime"`
}

// TreeNode is a node in the workspace file tree.
type TreeNode struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	IsDir    bool       `json:"is_dir"`
	Children []TreeNode `json:"children,omitempty"`
}
