// Package ocr wraps the text-detection engine behind a small interface.
// The engine is an opaque capability: give it a raster page, get back text
// regions with bounding polygons and confidence scores.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
)

// Point is one corner of a region's bounding polygon, in pixel coordinates.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Region is one detected text span. Immutable once produced by the engine.
type Region struct {
	Polygon    [4]Point `json:"polygon"` // ordered corners, top-left first
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"` // 0..1
}

// Engine detects text regions on a single raster page.
type Engine interface {
	Detect(ctx context.Context, imagePath string) ([]Region, error)
}

// Config for the tesseract-backed engine.
type Config struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	Lang          string // default "eng"
	TessdataDir   string
	PSM           int // e.g., 6 is good for uniform block of text
	OEM           int // 1 = LSTM; leave 0 to use default
}

// Tesseract runs tesseract in TSV mode and converts word rows to Regions.
type Tesseract struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg Config, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	return &Tesseract{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Detect runs `tesseract <image> stdout -l <lang> ... tsv` and parses the
// output. Rows the engine mangles are dropped, not propagated.
func (t *Tesseract) Detect(ctx context.Context, imagePath string) ([]Region, error) {
	args := []string{imagePath, "stdout", "-l", t.cfg.Lang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", fmt.Sprintf("%d", t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, args...)
	if err != nil {
		return nil, fmt.Errorf("tesseract tsv: %w (stderr: %s)", err, truncate(string(errb), 512))
	}

	regions := parseTSV(out)
	t.logger.Debug("ocr.detect.ok", "image", imagePath, "regions", len(regions))
	return regions, nil
}
