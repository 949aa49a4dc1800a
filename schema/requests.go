package schema

// Workspace binding.

// OpenWorkspaceRequest describes a request to bind and watch a workspace root.
type OpenWorkspaceRequest struct {
	Path string
}

// OpenWorkspaceResponse reports the bound root and its file tree.
type OpenWorkspaceResponse struct {
	Root string
	Tree []TreeNode
}

// CloseWorkspaceRequest describes a request to tear down the workspace binding.
type CloseWorkspaceRequest struct{}

// CloseWorkspaceResponse reports completion of the teardown.
type CloseWorkspaceResponse struct{}

// GetTreeRequest describes a request for the workspace file tree.
type GetTreeRequest struct{}

// GetTreeResponse reports the workspace root and tree.
type GetTreeResponse struct {
	Root string
	Tree []TreeNode
}

// Filesystem tool surface.

// ListDirRequest describes a directory listing request.
type ListDirRequest struct {
	Path string
}

// ListDirResponse reports the resolved path and its entries.
type ListDirResponse struct {
	Path  string
	Items []FileInfo
}

// ReadFileRequest describes a file read request. MaxBytes zero means the
// service default.
type ReadFileRequest struct {
	Path     string
	MaxBytes int64
}

// ReadFileResponse reports file content. Binary content is base64-encoded.
type ReadFileResponse struct {
	Path          string
	Text          string
	ContentBase64 string
	Binary        bool
}

// WriteFileRequest describes a file write. Exactly one of Text or
// ContentBase64 carries the payload. Origin is the connection performing the
// write; it is excluded from the resulting change broadcast.
type WriteFileRequest struct {
	Path          string
	Text          string
	ContentBase64 string
	Origin        ConnID
}

// WriteFileResponse reports the resolved path that was written.
type WriteFileResponse struct {
	Path string
}

// SearchFilesRequest describes a filename search under the workspace root.
type SearchFilesRequest struct {
	Query string
	Root  string
	Limit int
}

// SearchFilesResponse reports matching files.
type SearchFilesResponse struct {
	Matches []FileInfo
}

// Sandboxed execution.

// RunCodeRequest describes a sandboxed code execution. Workdir empty means
// the workspace root. TimeoutSeconds zero means the service default. Origin
// is the initiating connection, excluded from artifact broadcasts.
type RunCodeRequest struct {
	Code           string
	Workdir        string
	TimeoutSeconds int
	Origin         ConnID
}

// RunCodeResponse reports the execution outcome. A timeout or code error
// yields Success false with ErrorMessage set; stdout/stderr carry whatever
// was captured up to that point.
type RunCodeResponse struct {
	Success      bool
	Stdout       string
	Stderr       string
	Artifacts    []string
	ErrorMessage string
}
