// Package raster expands file-system inputs — a single image, a multi-page
// PDF, or a directory mixing both — into an ordered list of page images for
// the extraction stages.
package raster

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"

	"github.com/invoicy-app/invoicy/constants"
	"github.com/invoicy-app/invoicy/internal/common"
)

// Page is one raster page of a source document, in document order.
// Created here, consumed once by text extraction.
type Page struct {
	SourceFile string `json:"source_file"` // original input file
	PageIndex  int    `json:"page_index"`  // 0-based within the source
	Path       string `json:"path"`        // raster image readable by the OCR engine
}

// Adapter rasterizes inputs into workDir. Rendered pages double as audit
// artifacts; naming is deterministic and order-preserving
// (<doc-stem>/page_<1-based>.png).
type Adapter struct {
	workDir string
	logger  *slog.Logger
}

func New(workDir string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{workDir: workDir, logger: logger}
}

// ToPages expands inputPath into an ordered page list. Directories are
// scanned non-recursively; entries with unrecognized extensions are silently
// skipped. A missing path, or one that is neither a regular file nor a
// directory, fails with common.ErrInvalidInput.
func (a *Adapter) ToPages(ctx context.Context, inputPath string) ([]Page, error) {
	st, err := os.Stat(inputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", common.ErrInvalidInput, inputPath, err)
	}

	switch {
	case st.Mode().IsRegular():
		return a.expandFile(ctx, inputPath, true)
	case st.IsDir():
		return a.expandDir(ctx, inputPath)
	default:
		return nil, fmt.Errorf("%w: %q is neither a file nor a directory", common.ErrInvalidInput, inputPath)
	}
}

func (a *Adapter) expandDir(ctx context.Context, dir string) ([]Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read dir %q: %v", common.ErrInvalidInput, dir, err)
	}

	var pages []Page
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if _, ok := constants.AllowedExtensions[constants.NormalizeExt(filepath.Ext(path))]; !ok {
			continue
		}
		got, err := a.expandFile(ctx, path, false)
		if err != nil {
			// one bad document never aborts the batch
			a.logger.Error("raster.expand.failed", "path", path, "error", err)
			continue
		}
		pages = append(pages, got...)
	}
	return pages, nil
}

// expandFile turns one file into its pages. strict controls whether an
// unsupported extension is an error (single-file input) or just skipped.
func (a *Adapter) expandFile(ctx context.Context, path string, strict bool) ([]Page, error) {
	ext := filepath.Ext(path)
	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		return a.pdfToPages(ctx, path)
	case constants.IMAGE:
		if constants.IsHEICExt(ext) {
			return a.heicToPage(path)
		}
		return []Page{{SourceFile: path, PageIndex: 0, Path: path}}, nil
	default:
		if strict {
			return nil, fmt.Errorf("%w: unsupported extension %q", common.ErrInvalidInput, ext)
		}
		return nil, nil
	}
}

func (a *Adapter) pdfToPages(ctx context.Context, path string) ([]Page, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %q: %w", path, err)
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			a.logger.Warn("raster.pdf.close_error", "path", path, "error", cerr)
		}
	}()

	outDir := filepath.Join(a.workDir, docStem(path))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create page dir: %w", err)
	}

	var pages []Page
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		img, err := doc.Image(i)
		if err != nil {
			a.logger.Error("raster.pdf.page_failed", "path", path, "page", i, "error", err)
			continue
		}
		out := filepath.Join(outDir, fmt.Sprintf("page_%d.png", i+1))
		if err := writePNG(out, img); err != nil {
			a.logger.Error("raster.pdf.write_failed", "path", out, "error", err)
			continue
		}
		pages = append(pages, Page{SourceFile: path, PageIndex: i, Path: out})
	}

	a.logger.Info("raster.pdf.ok", "path", path, "pages", len(pages))
	return pages, nil
}

// heicToPage decodes a HEIC/HEIF image and re-encodes it as PNG so the OCR
// engine can read it.
func (a *Adapter) heicToPage(path string) ([]Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open heic %q: %w", path, err)
	}
	defer f.Close()

	img, err := heic.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode heic %q: %w", path, err)
	}

	outDir := filepath.Join(a.workDir, docStem(path))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create page dir: %w", err)
	}
	out := filepath.Join(outDir, "page_1.png")
	if err := writePNG(out, img); err != nil {
		return nil, err
	}
	return []Page{{SourceFile: path, PageIndex: 0, Path: out}}, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode png %q: %w", path, err)
	}
	return f.Close()
}

func docStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
