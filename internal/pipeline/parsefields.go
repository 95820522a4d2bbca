package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/invoicy-app/invoicy/internal/artifact"
	"github.com/invoicy-app/invoicy/internal/common"
	"github.com/invoicy-app/invoicy/internal/dates"
	"github.com/invoicy-app/invoicy/internal/llm"
	"github.com/invoicy-app/invoicy/internal/raster"
)

// dateFields are structured keys run through the date normalizer after a
// successful parse.
var dateFields = []string{"invoice_date", "due_date"}

// StructuredResult is the schema-guided extraction output for one page.
// On failure, Fields carries an error placeholder and Err the typed cause,
// so the page stays accounted for in consolidation instead of vanishing.
type StructuredResult struct {
	Fields map[string]any `json:"fields"`
	Usage  llm.Usage      `json:"token_usage"`
	Err    error          `json:"-"`
}

// ParseStage builds a schema-guided prompt from page text and asks the
// completion service for structured fields.
type ParseStage struct {
	completer llm.Completer
	schema    *llm.Schema
	sink      artifact.Sink
	logger    *slog.Logger
}

func NewParseStage(completer llm.Completer, schema *llm.Schema, sink artifact.Sink, logger *slog.Logger) *ParseStage {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = artifact.Discard{}
	}
	if schema == nil {
		schema = llm.DefaultSchema()
	}
	return &ParseStage{completer: completer, schema: schema, sink: sink, logger: logger}
}

// Structure sends one page's OCR text through the completion service and
// parses the JSON reply. Completion failures never crash the pipeline: the
// result degrades to an error placeholder with zero token counts.
func (s *ParseStage) Structure(ctx context.Context, page raster.Page, pageText string) StructuredResult {
	prompt := llm.BuildPrompt(s.schema.JSON(), pageText)

	base := pageArtifactBase(page)
	if err := s.sink.Write(base+"_prompt.txt", []byte(prompt)); err != nil {
		s.logger.Warn("pipeline.artifact.write_failed", "name", base+"_prompt.txt", "error", err)
	}

	content, usage, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return s.degraded(page, fmt.Errorf("completion failed: %w", err))
	}

	content = llm.CleanCompletion(content)
	if content == "" {
		return s.degraded(page, fmt.Errorf("%w: service returned blank content", common.ErrEmptyCompletion))
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return s.degraded(page, fmt.Errorf("%w: %v", common.ErrMalformedJSON, err))
	}

	dates.NormalizeFields(fields, dateFields, nil)

	// Advisory only; a shape mismatch still yields whatever came back.
	if err := s.schema.Validate(fields); err != nil {
		s.logger.Warn("pipeline.parse.schema_mismatch",
			"source", page.SourceFile,
			"page", page.PageIndex,
			"error", err,
		)
	}

	s.logger.Info("pipeline.parse.ok",
		"source", page.SourceFile,
		"page", page.PageIndex,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
	)
	return StructuredResult{Fields: fields, Usage: usage}
}

func (s *ParseStage) degraded(page raster.Page, err error) StructuredResult {
	s.logger.Error("pipeline.parse.failed",
		"source", page.SourceFile,
		"page", page.PageIndex,
		"error", err,
	)
	return StructuredResult{
		Fields: map[string]any{"error": err.Error()},
		Err:    err,
	}
}

// pageArtifactBase gives a deterministic, per-page artifact name:
// <doc-stem>/page_<1-based>.
func pageArtifactBase(page raster.Page) string {
	base := filepath.Base(page.SourceFile)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s/page_%d", stem, page.PageIndex+1)
}
