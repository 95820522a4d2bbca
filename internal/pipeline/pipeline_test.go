package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoicy-app/invoicy/internal/artifact"
	"github.com/invoicy-app/invoicy/internal/llm"
	"github.com/invoicy-app/invoicy/internal/ocr"
	"github.com/invoicy-app/invoicy/internal/raster"
)

type stubEngine struct {
	regions map[string][]ocr.Region // keyed by image path base
	err     error
}

func (s *stubEngine) Detect(_ context.Context, imagePath string) ([]ocr.Region, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.regions[filepath.Base(imagePath)], nil
}

type stubCompleter struct {
	mu       sync.Mutex
	calls    int
	response string
	usage    llm.Usage
	err      error
}

func (s *stubCompleter) Complete(_ context.Context, _ string) (string, llm.Usage, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.response, s.usage, s.err
}

func region(text string, conf float64) ocr.Region {
	return ocr.Region{Text: text, Confidence: conf}
}

func testPage(path string) raster.Page {
	return raster.Page{SourceFile: path, PageIndex: 0, Path: path}
}

func TestTextStageAveragesConfidence(t *testing.T) {
	eng := &stubEngine{regions: map[string][]ocr.Region{
		"a.png": {region("INVOICE", 0.9), region("#42", 0.7)},
	}}
	stage := NewTextStage(eng, nil, nil)

	ex := stage.Extract(context.Background(), testPage("a.png"))
	assert.Equal(t, "INVOICE #42", ex.Text)
	assert.InDelta(t, 0.8, ex.AverageConfidence, 1e-9)
	assert.Len(t, ex.Regions, 2)
}

func TestTextStageEmptyRegionsIsZeroNotNaN(t *testing.T) {
	stage := NewTextStage(&stubEngine{}, nil, nil)

	ex := stage.Extract(context.Background(), testPage("empty.png"))
	assert.Equal(t, "", ex.Text)
	assert.Equal(t, 0.0, ex.AverageConfidence)
	assert.Empty(t, ex.Regions)
}

func TestTextStageEngineFailureDegrades(t *testing.T) {
	stage := NewTextStage(&stubEngine{err: errors.New("engine unavailable")}, nil, nil)

	ex := stage.Extract(context.Background(), testPage("broken.png"))
	assert.Equal(t, PageExtraction{}, ex)
}

func TestTextStageWritesTranscripts(t *testing.T) {
	dir := t.TempDir()
	sink, err := artifact.NewDirSink(dir, nil)
	require.NoError(t, err)

	eng := &stubEngine{regions: map[string][]ocr.Region{
		"scan.png": {region("Total", 0.95)},
	}}
	stage := NewTextStage(eng, sink, nil)
	stage.Extract(context.Background(), raster.Page{SourceFile: "/in/scan.png", PageIndex: 0, Path: "scan.png"})

	text, err := os.ReadFile(filepath.Join(dir, "scan", "page_1_text.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(text), "Text: Total, Confidence: 0.9500")

	boxes, err := os.ReadFile(filepath.Join(dir, "scan", "page_1_boxes.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(boxes), "Box: ")
	assert.Contains(t, string(boxes), "Text: Total")
}

func TestParseStageSuccessNormalizesDates(t *testing.T) {
	comp := &stubCompleter{
		response: `{"invoice_number":"INV-1","invoice_date":"12/31/2023","items":[{"description":"widget"}]}`,
		usage:    llm.Usage{PromptTokens: 100, CompletionTokens: 20},
	}
	stage := NewParseStage(comp, nil, nil, nil)

	res := stage.Structure(context.Background(), testPage("a.png"), "INVOICE text")
	require.NoError(t, res.Err)
	assert.Equal(t, "INV-1", res.Fields["invoice_number"])
	assert.Equal(t, "2023-12-31", res.Fields["invoice_date"])
	assert.Equal(t, llm.Usage{PromptTokens: 100, CompletionTokens: 20}, res.Usage)
}

func TestParseStageWhitespaceCompletion(t *testing.T) {
	comp := &stubCompleter{response: "   ", usage: llm.Usage{PromptTokens: 50, CompletionTokens: 1}}
	stage := NewParseStage(comp, nil, nil, nil)

	res := stage.Structure(context.Background(), testPage("a.png"), "some text")
	require.Error(t, res.Err)
	assert.Equal(t, llm.Usage{}, res.Usage, "degraded results carry zero token counts")
	assert.Contains(t, res.Fields["error"], "empty completion")
}

func TestParseStageMalformedJSON(t *testing.T) {
	comp := &stubCompleter{response: "Sure! Here is the invoice: {..."}
	stage := NewParseStage(comp, nil, nil, nil)

	res := stage.Structure(context.Background(), testPage("a.png"), "some text")
	require.Error(t, res.Err)
	assert.Contains(t, res.Fields["error"], "malformed json")
}

func TestParseStageCompleterError(t *testing.T) {
	comp := &stubCompleter{err: errors.New("connection refused")}
	stage := NewParseStage(comp, nil, nil, nil)

	res := stage.Structure(context.Background(), testPage("a.png"), "some text")
	require.Error(t, res.Err)
	assert.Contains(t, res.Fields["error"], "connection refused")
}

func TestParseStagePersistsPrompt(t *testing.T) {
	dir := t.TempDir()
	sink, err := artifact.NewDirSink(dir, nil)
	require.NoError(t, err)

	comp := &stubCompleter{response: `{"invoice_number":"INV-1"}`}
	stage := NewParseStage(comp, nil, sink, nil)
	stage.Structure(context.Background(), raster.Page{SourceFile: "/in/doc.pdf", PageIndex: 2, Path: "page_3.png"}, "the text")

	prompt, err := os.ReadFile(filepath.Join(dir, "doc", "page_3_prompt.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(prompt), "Invoice Extraction Specialist")
	assert.Contains(t, string(prompt), "Extracted Text:\nthe text")
}

func writeFakePNG(t *testing.T, dir, name string) string {
	t.Helper()
	// raster passes plain images through untouched, so content is irrelevant
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))
	return path
}

func TestProcessorRunEndToEnd(t *testing.T) {
	in := t.TempDir()
	a := writeFakePNG(t, in, "a.png")
	b := writeFakePNG(t, in, "b.png")
	writeFakePNG(t, in, "c.png")

	eng := &stubEngine{regions: map[string][]ocr.Region{
		filepath.Base(a): {region("INVOICE one", 0.9)},
		filepath.Base(b): {region("INVOICE two", 0.8)},
		// c.png: no regions -> empty transcript -> no completion call
	}}

	comp := &stubCompleter{
		response: `{"invoice_number":"INV-1","items":["item"]}`,
		usage:    llm.Usage{PromptTokens: 10, CompletionTokens: 5},
	}

	proc := NewProcessor(
		raster.New(t.TempDir(), nil),
		NewTextStage(eng, nil, nil),
		NewParseStage(comp, nil, nil, nil),
		3,
		nil,
	)

	var steps []string
	summary, err := proc.Run(context.Background(), in, func(s string) { steps = append(steps, s) })
	require.NoError(t, err)

	assert.Equal(t, []string{StepExtracting, StepCollating, StepReady}, steps)
	assert.Equal(t, 2, comp.calls, "empty transcript must not trigger a completion call")

	require.Contains(t, summary.Invoices, "INV-1")
	rec := summary.Invoices["INV-1"]
	assert.Equal(t, 2, rec.PageCount)
	assert.InDelta(t, 0.85, rec.AverageConfidence, 1e-9)
	assert.Equal(t, []any{"item", "item"}, rec.Fields["items"])

	// all three pages are accounted for, in input order
	require.Len(t, summary.Pages, 3)
	assert.Equal(t, "a.png", summary.Pages[0].File)
	assert.Equal(t, "b.png", summary.Pages[1].File)
	assert.Equal(t, "c.png", summary.Pages[2].File)
	assert.Equal(t, "no text detected; page skipped", summary.Pages[2].Error)

	assert.Equal(t, llm.Usage{PromptTokens: 20, CompletionTokens: 10}, summary.Usage)
	assert.InDelta(t, llm.EstimateCostUSD(summary.Usage), summary.EstimatedCostUSD, 1e-12)
}

func TestProcessorRunInvalidPath(t *testing.T) {
	proc := NewProcessor(
		raster.New(t.TempDir(), nil),
		NewTextStage(&stubEngine{}, nil, nil),
		NewParseStage(&stubCompleter{}, nil, nil, nil),
		1,
		nil,
	)
	_, err := proc.Run(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}

func TestProcessorDegradedPageStillCounted(t *testing.T) {
	in := t.TempDir()
	a := writeFakePNG(t, in, "a.png")

	eng := &stubEngine{regions: map[string][]ocr.Region{
		filepath.Base(a): {region("text", 0.7)},
	}}
	comp := &stubCompleter{response: "   "} // whitespace completion

	proc := NewProcessor(
		raster.New(t.TempDir(), nil),
		NewTextStage(eng, nil, nil),
		NewParseStage(comp, nil, nil, nil),
		1,
		nil,
	)
	summary, err := proc.Run(context.Background(), in, nil)
	require.NoError(t, err)

	assert.Empty(t, summary.Invoices, "error placeholder has no invoice_number")
	require.Len(t, summary.Pages, 1)
	assert.NotEmpty(t, summary.Pages[0].Error)
	assert.Equal(t, llm.Usage{}, summary.Usage)
}
