package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"pkt.systems/atelier/core"
	"pkt.systems/atelier/schema"
)

// Server serves the HTTP API and the observer socket.
type Server struct {
	cfg     Config
	service core.Service
	hub     *Hub
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, service core.Service, hub *Hub) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = schema.DefaultHeartbeatInterval
	}
	return &Server{
		cfg:     cfg,
		service: service,
		hub:     hub,
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/workspace/open", s.handleWorkspaceOpen)
	mux.HandleFunc("/api/workspace/close", s.handleWorkspaceClose)
	mux.HandleFunc("/api/tree", s.handleTree)
	mux.HandleFunc("/api/dir", s.handleDir)
	mux.HandleFunc("/api/file", s.handleFile)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/run", s.handleRun)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/events", s.handleEvents)
	return withRequestLogging(mux)
}

func (s *Server) handleWorkspaceOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var payload struct {
		Path string `json:"path"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.OpenWorkspace(r.Context(), schema.OpenWorkspaceRequest{Path: payload.Path})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"root": resp.Root,
		"tree": resp.Tree,
	})
}

func (s *Server) handleWorkspaceClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if _, err := s.service.CloseWorkspace(r.Context(), schema.CloseWorkspaceRequest{}); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"closed": true})
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	resp, err := s.service.GetTree(r.Context(), schema.GetTreeRequest{})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"root": resp.Root,
		"tree": resp.Tree,
	})
}

func (s *Server) handleDir(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	resp, err := s.service.ListDir(r.Context(), schema.ListDirRequest{Path: r.URL.Query().Get("path")})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":  resp.Path,
		"items": resp.Items,
	})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleFileRead(w, r)
	case http.MethodPost, http.MethodPut:
		s.handleFileWrite(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (s *Server) handleFileRead(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := s.service.ReadFile(r.Context(), schema.ReadFileRequest{
		Path:     query.Get("path"),
		MaxBytes: parseInt64(query.Get("max_bytes")),
	})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":           resp.Path,
		"binary":         resp.Binary,
		"text":           resp.Text,
		"content_base64": resp.ContentBase64,
	})
}

func (s *Server) handleFileWrite(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Path          string `json:"path"`
		Text          string `json:"text"`
		ContentBase64 string `json:"content_base64"`
		Origin        string `json:"origin"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.WriteFile(r.Context(), schema.WriteFileRequest{
		Path:          payload.Path,
		Text:          payload.Text,
		ContentBase64: payload.ContentBase64,
		Origin:        schema.ConnID(payload.Origin),
	})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": resp.Path})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	query := r.URL.Query()
	resp, err := s.service.SearchFiles(r.Context(), schema.SearchFilesRequest{
		Query: query.Get("q"),
		Root:  query.Get("root"),
		Limit: int(parseInt64(query.Get("limit"))),
	})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": resp.Matches})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var payload struct {
		Code           string `json:"code"`
		Workdir        string `json:"workdir"`
		TimeoutSeconds int    `json:"timeout_seconds"`
		Origin         string `json:"origin"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.RunCode(r.Context(), schema.RunCodeRequest{
		Code:           payload.Code,
		Workdir:        payload.Workdir,
		TimeoutSeconds: payload.TimeoutSeconds,
		Origin:         schema.ConnID(payload.Origin),
	})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   resp.Success,
		"stdout":    resp.Stdout,
		"stderr":    resp.Stderr,
		"artifacts": resp.Artifacts,
		"error":     resp.ErrorMessage,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": s.hub.Len()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, schema.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrPathOutsideWorkspace):
		return http.StatusForbidden
	case errors.Is(err, schema.ErrWorkspaceNotOpen):
		return http.StatusConflict
	case errors.Is(err, schema.ErrCapacityExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, schema.ErrNotADirectory),
		errors.Is(err, schema.ErrIsADirectory),
		errors.Is(err, schema.ErrInvalidWorkdir),
		errors.Is(err, schema.ErrEmptyCode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func parseInt64(value string) int64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
