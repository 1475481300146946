package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/driftworks/workbench/internal/skills"
	"github.com/driftworks/workbench/internal/vfs"
)

type skillSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Version     string   `json:"version,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Triggers    []string `json:"triggers,omitempty"`
	Priority    int      `json:"priority,omitempty"`
	Outline     []string `json:"outline,omitempty"`
}

// Skill routes only ever expose the caller's own library.
func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	scope, _ := vfs.ScopeFrom(r.Context())
	list := s.loader.List(scope.UserID)
	out := make([]skillSummary, 0, len(list))
	for _, sk := range list {
		out = append(out, skillSummary{
			Name:        sk.Name,
			Description: sk.Description,
			Version:     sk.Version,
			Tags:        sk.Tags,
			Triggers:    sk.Triggers,
			Priority:    sk.Priority,
			Outline:     skills.Outline(sk.Body),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": out})
}

func (s *Server) handleSkill(w http.ResponseWriter, r *http.Request) {
	scope, _ := vfs.ScopeFrom(r.Context())
	name := chi.URLParam(r, "name")
	sk, ok := s.loader.Get(scope.UserID, name)
	if !ok {
		writeError(w, http.StatusNotFound, "skill not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        sk.Name,
		"description": sk.Description,
		"version":     sk.Version,
		"tags":        sk.Tags,
		"triggers":    sk.Triggers,
		"priority":    sk.Priority,
		"body":        sk.Body,
	})
}
