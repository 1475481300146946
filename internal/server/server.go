// Package server exposes the workspace filesystem and sandbox over HTTP.
// The API mirrors the agent tool surface: list/stat/read/tree/write on the
// virtual filesystem, command execution (blocking and streaming), and the
// skill catalog.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/driftworks/workbench/internal/config"
	"github.com/driftworks/workbench/internal/logging"
	"github.com/driftworks/workbench/internal/sandbox"
	"github.com/driftworks/workbench/internal/skills"
	"github.com/driftworks/workbench/internal/vfs"
)

// Server wires the HTTP API to the workspace backend.
type Server struct {
	cfg     config.ServerConfig
	auth    config.AuthConfig
	backend *vfs.Backend
	manager *sandbox.Manager
	loader  *skills.Loader
}

// New creates a Server.
func New(cfg config.ServerConfig, auth config.AuthConfig, backend *vfs.Backend, manager *sandbox.Manager, loader *skills.Loader) *Server {
	return &Server{cfg: cfg, auth: auth, backend: backend, manager: manager, loader: loader}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware(s.auth))
		r.Use(scopeMiddleware)

		r.Route("/fs", func(r chi.Router) {
			r.Get("/list", s.handleList)
			r.Get("/stat", s.handleStat)
			r.Get("/read", s.handleRead)
			r.Get("/tree", s.handleTree)
			r.Post("/write", s.handleWrite)
			r.Post("/edit", s.handleEdit)
			r.Delete("/delete", s.handleDelete)
			r.Get("/glob", s.handleGlob)
			r.Get("/grep", s.handleGrep)
		})

		r.Post("/exec", s.handleExec)
		r.Get("/exec/stream", s.handleExecStream)

		r.Get("/skills", s.handleSkills)
		r.Get("/skills/{name}", s.handleSkill)
	})

	return r
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("[server] listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
