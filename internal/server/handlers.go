package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/invoicy-app/invoicy/internal/store"
)

// request bodies are capped to keep a single upload from exhausting memory
const maxUploadBytes = int64(50 << 20)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleExtract accepts a multipart upload, runs the full pipeline on it, and
// returns the consolidated invoices.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	runID := uuid.NewString()
	started := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.logger.Error("server.extract.bad_form", "run_id", runID, "error", err)
		writeError(w, http.StatusBadRequest, "could not parse multipart form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer f.Close()

	path, err := s.saveUpload(runID, header.Filename, f)
	if err != nil {
		s.logger.Error("server.extract.save_failed", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	s.logger.Info("server.extract.start", "run_id", runID, "file", header.Filename, "size", header.Size)

	summary, err := s.proc.Run(r.Context(), path, nil)
	if err != nil {
		s.logger.Error("server.extract.failed", "run_id", runID, "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if s.store != nil {
		if err := s.store.SaveRun(r.Context(), runID, header.Filename, started, time.Now(), summary); err != nil {
			// History is best-effort; the extraction itself succeeded.
			s.logger.Error("server.extract.save_run_failed", "run_id", runID, "error", err)
		}
	}

	s.logger.Info("server.extract.ok",
		"run_id", runID,
		"invoices", len(summary.Invoices),
		"pages", len(summary.Pages),
		"duration_ms", time.Since(started).Milliseconds())

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  runID,
		"summary": summary,
	})
}

func (s *Server) saveUpload(runID, name string, src io.Reader) (string, error) {
	dir := filepath.Join(s.uploadDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("writing upload: %w", err)
	}
	return path, nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		s.logger.Error("server.runs.list_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleRunExport re-exports a stored run's invoices as an XLSX workbook.
func (s *Server) handleRunExport(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	runID := r.PathValue("id")

	invoices, err := s.store.Invoices(r.Context(), runID)
	if err != nil {
		s.logger.Error("server.runs.export_failed", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load run")
		return
	}
	if len(invoices) == 0 {
		writeError(w, http.StatusNotFound, "no invoices for run")
		return
	}

	b, err := s.exporter.InvoicesXLSX(invoices)
	if err != nil {
		s.logger.Error("server.runs.export_failed", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not build workbook")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "invoices_"+runID+".xlsx"))
	_, _ = w.Write(b)
}
