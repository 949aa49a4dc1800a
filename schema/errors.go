package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrPathOutsideWorkspace indicates a path that escapes the workspace root.
	ErrPathOutsideWorkspace = errors.New("path outside workspace root")
	// ErrWorkspaceNotOpen indicates no workspace root is bound.
	ErrWorkspaceNotOpen = errors.New("workspace not open")
	// ErrNotADirectory indicates the path is not a directory.
	ErrNotADirectory = errors.New("not a directory")
	// ErrIsADirectory indicates the path is a directory where a file was expected.
	ErrIsADirectory = errors.New("is a directory")
	// ErrFileNotFound indicates a file could not be found.
	ErrFileNotFound = errors.New("file not found")
	// ErrInvalidWorkdir indicates an execution workdir outside the workspace.
	ErrInvalidWorkdir = errors.New("invalid workdir")
	// ErrEmptyCode indicates an execution request without code.
	ErrEmptyCode = errors.New("empty code")
	// ErrExecutionTimeout indicates sandboxed code exceeded its time bound.
	ErrExecutionTimeout = errors.New("execution timeout")
	// ErrExecutionFailure indicates sandboxed code raised an error.
	ErrExecutionFailure = errors.New("execution failed")
	// ErrCapacityExceeded indicates the observer connection limit was reached.
	ErrCapacityExceeded = errors.New("connection capacity exceeded")
	// ErrConnectionClosed indicates an operation on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)
