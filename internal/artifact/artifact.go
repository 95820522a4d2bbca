// Package artifact persists audit trails for a single pipeline run: OCR
// transcripts, the exact prompts sent to the completion service, and
// rasterized pages. Artifacts are write-only for the pipeline; nothing reads
// them back.
package artifact

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Sink is an append-only destination for run artifacts. Names may contain
// slashes to group artifacts per page or per source document.
type Sink interface {
	Write(name string, data []byte) error
	Dir() string
}

// DirSink writes artifacts under a run-scoped directory so concurrent runs
// never collide on a shared file.
type DirSink struct {
	root   string
	logger *slog.Logger
}

func NewDirSink(root string, logger *slog.Logger) (*DirSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &DirSink{root: root, logger: logger}, nil
}

func (s *DirSink) Dir() string { return s.root }

func (s *DirSink) Write(name string, data []byte) error {
	path := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Warn("artifact.close_error", "path", path, "error", cerr)
		}
	}()
	_, err = f.Write(data)
	return err
}

// Discard drops everything. Used by tests and callers that opt out of audit
// trails.
type Discard struct{}

func (Discard) Write(string, []byte) error { return nil }
func (Discard) Dir() string                { return "" }
