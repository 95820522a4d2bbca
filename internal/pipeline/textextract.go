// Package pipeline turns rasterized invoice pages into consolidated,
// confidence-scored records: OCR text extraction, schema-guided structured
// extraction, then per-invoice-number merging.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/invoicy-app/invoicy/internal/artifact"
	"github.com/invoicy-app/invoicy/internal/ocr"
	"github.com/invoicy-app/invoicy/internal/raster"
)

// PageExtraction is the per-page OCR result, passed by value downstream.
type PageExtraction struct {
	Regions           []ocr.Region `json:"regions"`
	Text              string       `json:"text"`               // region texts joined in detection order
	AverageConfidence float64      `json:"average_confidence"` // 0.0 when no regions, never NaN
}

// TextStage wraps the OCR engine call for one page and persists transcripts
// for audit.
type TextStage struct {
	engine ocr.Engine
	sink   artifact.Sink
	logger *slog.Logger
}

func NewTextStage(engine ocr.Engine, sink artifact.Sink, logger *slog.Logger) *TextStage {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = artifact.Discard{}
	}
	return &TextStage{engine: engine, sink: sink, logger: logger}
}

// Extract runs the OCR engine once for the page. An engine failure is
// logged and degrades to an empty extraction; callers treat that as "skip
// this page", never as a pipeline failure.
func (s *TextStage) Extract(ctx context.Context, page raster.Page) PageExtraction {
	regions, err := s.engine.Detect(ctx, page.Path)
	if err != nil {
		s.logger.Error("pipeline.ocr.failed",
			"source", page.SourceFile,
			"page", page.PageIndex,
			"error", err,
		)
		return PageExtraction{}
	}

	texts := make([]string, 0, len(regions))
	var sum float64
	for _, r := range regions {
		texts = append(texts, r.Text)
		sum += r.Confidence
	}
	avg := 0.0
	if len(regions) > 0 {
		avg = sum / float64(len(regions))
	}

	ex := PageExtraction{
		Regions:           regions,
		Text:              strings.Join(texts, " "),
		AverageConfidence: avg,
	}
	s.writeTranscripts(page, ex)

	s.logger.Info("pipeline.ocr.ok",
		"source", page.SourceFile,
		"page", page.PageIndex,
		"regions", len(regions),
		"confidence", avg,
	)
	return ex
}

func (s *TextStage) writeTranscripts(page raster.Page, ex PageExtraction) {
	var text, boxes strings.Builder
	for _, r := range ex.Regions {
		fmt.Fprintf(&text, "Text: %s, Confidence: %.4f\n", r.Text, r.Confidence)
		fmt.Fprintf(&boxes, "Box: %v, Text: %s, Confidence: %.4f\n", r.Polygon, r.Text, r.Confidence)
	}
	base := pageArtifactBase(page)
	if err := s.sink.Write(base+"_text.txt", []byte(text.String())); err != nil {
		s.logger.Warn("pipeline.artifact.write_failed", "name", base+"_text.txt", "error", err)
	}
	if err := s.sink.Write(base+"_boxes.txt", []byte(boxes.String())); err != nil {
		s.logger.Warn("pipeline.artifact.write_failed", "name", base+"_boxes.txt", "error", err)
	}
}
