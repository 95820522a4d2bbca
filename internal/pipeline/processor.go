package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/invoicy-app/invoicy/internal/llm"
	"github.com/invoicy-app/invoicy/internal/raster"
)

// Progress markers emitted in order during a run.
const (
	StepExtracting = "Extracting information"
	StepCollating  = "Collating information"
	StepReady      = "Ready to present"
)

// ProgressFunc receives coarse progress markers for user-facing output.
type ProgressFunc func(step string)

// PageStatus is the per-page accounting line in the final summary. Degraded
// pages show up here with an error instead of silently dropping out of the
// processed-file count.
type PageStatus struct {
	File              string  `json:"file"`
	PageIndex         int     `json:"page_index"`
	AverageConfidence float64 `json:"average_confidence"`
	InvoiceNumber     string  `json:"invoice_number,omitempty"`
	Error             string  `json:"error,omitempty"`
}

// Summary is the final output of one run.
type Summary struct {
	Invoices         map[string]*InvoiceRecord `json:"invoices"`
	Pages            []PageStatus              `json:"pages"`
	Usage            llm.Usage                 `json:"token_usage"`
	EstimatedCostUSD float64                   `json:"estimated_cost_usd"`
}

// Processor coordinates rasterization, the per-page stages, and
// consolidation. Service handles are constructed once at startup and reused
// across all pages.
type Processor struct {
	raster  *raster.Adapter
	text    *TextStage
	parse   *ParseStage
	workers int
	logger  *slog.Logger
}

func NewProcessor(r *raster.Adapter, text *TextStage, parse *ParseStage, workers int, logger *slog.Logger) *Processor {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{raster: r, text: text, parse: parse, workers: workers, logger: logger}
}

// Run executes the whole pipeline for one input path. Per-page OCR and
// structured extraction share no mutable state and fan out over a bounded
// worker pool; results land in an index-addressed slice so consolidation
// always sees input order, whatever order workers finish in. Only
// rasterization-level errors are fatal; a single page's failure never
// aborts the batch.
func (p *Processor) Run(ctx context.Context, inputPath string, progress ProgressFunc) (*Summary, error) {
	if progress == nil {
		progress = func(string) {}
	}

	progress(StepExtracting)
	pages, err := p.raster.ToPages(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	p.logger.Info("pipeline.run.start", "input", inputPath, "pages", len(pages), "workers", p.workers)

	results := make([]PageResult, len(pages))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.processPage(ctx, pages[i])
			}
		}()
	}
	for i := range pages {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	progress(StepCollating)
	merged := Merge(results)

	summary := &Summary{
		Invoices: merged,
		Pages:    make([]PageStatus, 0, len(results)),
	}
	for _, r := range results {
		summary.Usage = summary.Usage.Add(r.Structured.Usage)
		summary.Pages = append(summary.Pages, pageStatus(r))
	}
	summary.EstimatedCostUSD = llm.EstimateCostUSD(summary.Usage)

	p.logger.Info("pipeline.run.ok",
		"input", inputPath,
		"pages", len(results),
		"invoices", len(merged),
		"prompt_tokens", summary.Usage.PromptTokens,
		"completion_tokens", summary.Usage.CompletionTokens,
	)
	progress(StepReady)
	return summary, nil
}

// processPage runs OCR then structured extraction for one page. Pages with
// an empty transcript skip the completion call entirely.
func (p *Processor) processPage(ctx context.Context, page raster.Page) PageResult {
	res := PageResult{
		FileName: filepath.Base(page.SourceFile),
		Page:     page,
	}
	res.Extraction = p.text.Extract(ctx, page)

	if strings.TrimSpace(res.Extraction.Text) == "" {
		p.logger.Warn("pipeline.page.no_text",
			"source", page.SourceFile,
			"page", page.PageIndex,
		)
		return res
	}

	res.Structured = p.parse.Structure(ctx, page, res.Extraction.Text)
	return res
}

func pageStatus(r PageResult) PageStatus {
	st := PageStatus{
		File:              r.FileName,
		PageIndex:         r.Page.PageIndex,
		AverageConfidence: r.Extraction.AverageConfidence,
		InvoiceNumber:     invoiceNumber(r.Structured.Fields),
	}
	switch {
	case r.Structured.Err != nil:
		st.Error = r.Structured.Err.Error()
	case strings.TrimSpace(r.Extraction.Text) == "":
		st.Error = "no text detected; page skipped"
	}
	return st
}
