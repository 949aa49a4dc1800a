package core

import (
	"context"

	"pkt.systems/atelier/schema"
)

// Service is the transport-agnostic API for workspace binding, file access
// and sandboxed code execution.
type Service interface {
	OpenWorkspace(ctx context.Context, req schema.OpenWorkspaceRequest) (schema.OpenWorkspaceResponse, error)
	CloseWorkspace(ctx context.Context, req schema.CloseWorkspaceRequest) (schema.CloseWorkspaceResponse, error)
	GetTree(ctx context.Context, req schema.GetTreeRequest) (schema.GetTreeResponse, error)
	ListDir(ctx context.Context, req schema.ListDirRequest) (schema.ListDirResponse, error)
	ReadFile(ctx context.Context, req schema.ReadFileRequest) (schema.ReadFileResponse, error)
	WriteFile(ctx context.Context, req schema.WriteFileRequest) (schema.WriteFileResponse, error)
	SearchFiles(ctx context.Context, req schema.SearchFilesRequest) (schema.SearchFilesResponse, error)
	RunCode(ctx context.Context, req schema.RunCodeRequest) (schema.RunCodeResponse, error)
}
