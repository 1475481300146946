package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/driftworks/workbench/internal/store"
	"github.com/driftworks/workbench/internal/vfs"
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	scope, _ := vfs.ScopeFrom(r.Context())
	path := pathParam(r)

	entries, err := s.backend.Ls(r.Context(), scope, path)
	if err != nil {
		writeFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	scope, _ := vfs.ScopeFrom(r.Context())
	path := pathParam(r)

	entry, err := s.backend.Stat(r.Context(), scope, path)
	if err != nil {
		writeFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	scope, _ := vfs.ScopeFrom(r.Context())
	path := pathParam(r)

	content, err := s.backend.Read(r.Context(), scope, path)
	if err != nil {
		writeFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":    path,
		"content": string(content),
		"size":    len(content),
	})
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	scope, _ := vfs.ScopeFrom(r.Context())
	path := pathParam(r)
	if path == "" {
		path = "/"
	}

	entries, err := s.backend.Tree(r.Context(), scope, path)
	if err != nil {
		writeFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type writeRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append"`
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	scope, _ := vfs.ScopeFrom(r.Context())

	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	entry, err := s.backend.Write(r.Context(), scope, req.Path, []byte(req.Content), req.Append)
	if err != nil {
		writeFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type editRequest struct {
	Path       string `json:"path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all"`
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	scope, _ := vfs.ScopeFrom(r.Context())

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}
	if req.Path == "" || req.OldString == "" {
		writeError(w, http.StatusBadRequest, "path and old_string are required")
		return
	}

	replaced, err := s.backend.Edit(r.Context(), scope, req.Path, req.OldString, req.NewString, req.ReplaceAll)
	if err != nil {
		writeFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": req.Path, "replaced": replaced})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	scope, _ := vfs.ScopeFrom(r.Context())
	path := pathParam(r)
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	if err := s.backend.Delete(r.Context(), scope, path); err != nil {
		writeFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "deleted": true})
}

func (s *Server) handleGlob(w http.ResponseWriter, r *http.Request) {
	scope, _ := vfs.ScopeFrom(r.Context())
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		writeError(w, http.StatusBadRequest, "pattern is required")
		return
	}
	base := pathParam(r)
	if base == "" {
		base = "/"
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := s.backend.Glob(r.Context(), scope, base, pattern, limit)
	if err != nil {
		writeFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleGrep(w http.ResponseWriter, r *http.Request) {
	scope, _ := vfs.ScopeFrom(r.Context())
	q := r.URL.Query()

	opts := vfs.GrepOptions{
		Pattern:         q.Get("pattern"),
		Path:            q.Get("path"),
		Glob:            q.Get("glob"),
		CaseInsensitive: q.Get("case_insensitive") == "true",
	}
	opts.Limit, _ = strconv.Atoi(q.Get("limit"))
	if opts.Pattern == "" {
		writeError(w, http.StatusBadRequest, "pattern is required")
		return
	}

	matches, err := s.backend.Grep(r.Context(), scope, opts)
	if err != nil {
		writeFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func pathParam(r *http.Request) string {
	return r.URL.Query().Get("path")
}

// writeFSError maps filesystem errors to HTTP statuses without leaking
// internals: policy violations are 403, bad paths 400, missing objects 404.
func writeFSError(w http.ResponseWriter, err error) {
	var ambiguous *vfs.AmbiguousMatchError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, vfs.ErrNoMatch):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, vfs.ErrUnknownMount), errors.Is(err, vfs.ErrTraversal), errors.Is(err, vfs.ErrIsRoot):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, vfs.ErrReadOnlyMount), errors.Is(err, vfs.ErrFileType):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &ambiguous):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
