package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoicy-app/invoicy/internal/llm"
	"github.com/invoicy-app/invoicy/internal/pipeline"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "invoicy.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleSummary() *pipeline.Summary {
	return &pipeline.Summary{
		Invoices: map[string]*pipeline.InvoiceRecord{
			"INV-1": {
				InvoiceNumber:     "INV-1",
				Text:              "page one\npage two\n",
				Fields:            map[string]any{"invoice_number": "INV-1", "vendor_name": "Acme", "items": []any{}},
				AverageConfidence: 0.85,
				PageCount:         2,
			},
		},
		Pages: []pipeline.PageStatus{
			{File: "a.pdf", PageIndex: 0, AverageConfidence: 0.9, InvoiceNumber: "INV-1"},
			{File: "a.pdf", PageIndex: 1, AverageConfidence: 0.8, InvoiceNumber: "INV-1"},
		},
		Usage:            llm.Usage{PromptTokens: 200, CompletionTokens: 50},
		EstimatedCostUSD: 0.000175,
	}
}

func TestSaveAndListRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute)
	require.NoError(t, s.SaveRun(ctx, "run-1", "/in/a.pdf", started, time.Now(), sampleSummary()))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	r := runs[0]
	assert.Equal(t, "run-1", r.ID)
	assert.Equal(t, "/in/a.pdf", r.InputPath)
	assert.Equal(t, 2, r.Pages)
	assert.Equal(t, 1, r.Invoices)
	assert.Equal(t, llm.Usage{PromptTokens: 200, CompletionTokens: 50}, r.Usage)
	assert.InDelta(t, 0.000175, r.EstimatedCostUSD, 1e-9)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	empty := &pipeline.Summary{Invoices: map[string]*pipeline.InvoiceRecord{}}
	require.NoError(t, s.SaveRun(ctx, "old", "/in/x", base, base.Add(time.Second), empty))
	require.NoError(t, s.SaveRun(ctx, "new", "/in/y", base.Add(time.Hour), base.Add(time.Hour+time.Second), empty))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[1].ID)
}

func TestInvoicesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRun(ctx, "run-1", "/in/a.pdf", time.Now(), time.Now(), sampleSummary()))

	got, err := s.Invoices(ctx, "run-1")
	require.NoError(t, err)
	require.Contains(t, got, "INV-1")

	rec := got["INV-1"]
	assert.Equal(t, 2, rec.PageCount)
	assert.InDelta(t, 0.85, rec.AverageConfidence, 1e-9)
	assert.Equal(t, "Acme", rec.Fields["vendor_name"])
	assert.Equal(t, "page one\npage two\n", rec.Text)
}

func TestInvoicesUnknownRun(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Invoices(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDuplicateRunIDRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sum := &pipeline.Summary{Invoices: map[string]*pipeline.InvoiceRecord{}}
	require.NoError(t, s.SaveRun(ctx, "run-1", "/in/a", time.Now(), time.Now(), sum))
	assert.Error(t, s.SaveRun(ctx, "run-1", "/in/b", time.Now(), time.Now(), sum))
}
