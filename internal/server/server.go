// Package server exposes the extraction pipeline over HTTP: upload a
// document, get consolidated invoices back, and browse past runs.
package server

import (
	"log/slog"
	"net/http"

	"github.com/invoicy-app/invoicy/internal/export"
	"github.com/invoicy-app/invoicy/internal/pipeline"
	"github.com/invoicy-app/invoicy/internal/store"
)

type Server struct {
	proc      *pipeline.Processor
	store     *store.Store // nil disables run history
	exporter  *export.Service
	uploadDir string
	mux       *http.ServeMux
	logger    *slog.Logger
}

// New creates a Server with a default mux.
func New(proc *pipeline.Processor, st *store.Store, exporter *export.Service, uploadDir string, logger *slog.Logger) *Server {
	return NewWithMux(proc, st, exporter, uploadDir, logger, http.NewServeMux())
}

// NewWithMux creates a Server with a custom mux for testing.
func NewWithMux(proc *pipeline.Processor, st *store.Store, exporter *export.Service, uploadDir string, logger *slog.Logger, mux *http.ServeMux) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		proc:      proc,
		store:     st,
		exporter:  exporter,
		uploadDir: uploadDir,
		mux:       mux,
		logger:    logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /extract", s.handleExtract)
	s.mux.HandleFunc("GET /runs", s.handleListRuns)
	s.mux.HandleFunc("GET /runs/{id}/invoices.xlsx", s.handleRunExport)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on addr and blocks.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("server.listen", "addr", addr)
	return http.ListenAndServe(addr, s.mux)
}
