// Package server is the HTTP boundary of runbox: the compile endpoint,
// the interactive run channel, and the job-history API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/michaelbrown/runbox/internal/compiler"
	"github.com/michaelbrown/runbox/internal/config"
	"github.com/michaelbrown/runbox/internal/language"
	"github.com/michaelbrown/runbox/internal/sandbox"
	"github.com/michaelbrown/runbox/internal/session"
	"github.com/michaelbrown/runbox/internal/storage"
	"github.com/michaelbrown/runbox/internal/workspace"
)

// Deps bundles the components the server bridges together.
type Deps struct {
	Store      storage.Store
	Workspaces *workspace.Store
	Registry   *session.Registry
	Invoker    *compiler.Invoker
	Sandbox    sandbox.Sandbox
	Languages  language.Set
	Log        *zap.SugaredLogger
}

// Server is the HTTP server for the runbox API.
type Server struct {
	cfg    *config.Config
	deps   Deps
	router chi.Router
	http   *http.Server
}

// New creates a new Server.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Post("/compile", s.handleCompile)
	r.Get("/term", s.handleTerm)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{token}", s.handleGetJob)
	})
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Handler exposes the router; used by tests via httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	s.deps.Log.Infow("runbox server starting", "addr", addr, "sandbox", s.cfg.Sandbox.Mode)
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server. Remaining unclaimed sessions
// are expired so their workspaces are released.
func (s *Server) Shutdown(ctx context.Context) error {
	s.deps.Log.Infow("shutting down server")
	s.deps.Registry.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(shutdownCtx)
}
