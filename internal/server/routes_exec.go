package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/driftworks/workbench/internal/logging"
	"github.com/driftworks/workbench/internal/vfs"
)

type execRequest struct {
	Command string `json:"command"`
}

type execResponse struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr,omitempty"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	scope, _ := vfs.ScopeFrom(r.Context())
	if scope.ThreadID == "" {
		writeError(w, http.StatusBadRequest, "thread is required")
		return
	}

	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	result, err := s.manager.Execute(r.Context(), scope, req.Command)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, execResponse{
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		ExitCode:   result.ExitCode,
		DurationMS: result.Duration.Milliseconds(),
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API sits behind token auth, not cookies, so cross-origin
	// upgrades carry no ambient credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type streamFrame struct {
	Type string `json:"type"` // "line", "error", or "done"
	Data string `json:"data,omitempty"`
}

// handleExecStream runs a command and pushes output lines over a websocket
// as they are produced. The command comes from the "command" query
// parameter so the upgrade handshake stays a plain GET.
func (s *Server) handleExecStream(w http.ResponseWriter, r *http.Request) {
	scope, _ := vfs.ScopeFrom(r.Context())
	if scope.ThreadID == "" {
		writeError(w, http.StatusBadRequest, "thread is required")
		return
	}
	command := r.URL.Query().Get("command")
	if command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnf("[server] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	scanner, finish, err := s.manager.Stream(r.Context(), scope, command)
	if err != nil {
		_ = conn.WriteJSON(streamFrame{Type: "error", Data: err.Error()})
		return
	}
	defer scanner.Close()

	for scanner.Scan() {
		if err := conn.WriteJSON(streamFrame{Type: "line", Data: scanner.Text()}); err != nil {
			// Client went away. Drain the command so finish still syncs.
			for scanner.Scan() {
			}
			break
		}
	}
	if err := scanner.Err(); err != nil {
		_ = conn.WriteJSON(streamFrame{Type: "error", Data: err.Error()})
	}

	if err := finish(); err != nil {
		_ = conn.WriteJSON(streamFrame{Type: "error", Data: err.Error()})
		return
	}
	_ = conn.WriteJSON(streamFrame{Type: "done"})
}
