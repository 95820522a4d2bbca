package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pageWith(text string, conf float64, fields map[string]any) PageResult {
	return PageResult{
		Extraction: PageExtraction{Text: text, AverageConfidence: conf},
		Structured: StructuredResult{Fields: fields},
	}
}

func TestMergeTwoPagesSameInvoice(t *testing.T) {
	results := []PageResult{
		pageWith("page one text", 0.90, map[string]any{
			"invoice_number": "INV-1",
			"vendor_name":    "Acme",
			"items":          []any{"A"},
		}),
		pageWith("page two text", 0.80, map[string]any{
			"invoice_number": "INV-1",
			"vendor_name":    "SHOULD NOT WIN",
			"items":          []any{"B"},
		}),
	}

	merged := Merge(results)
	require.Len(t, merged, 1)
	rec := merged["INV-1"]
	require.NotNil(t, rec)

	assert.Equal(t, 2, rec.PageCount)
	assert.InDelta(t, 0.85, rec.AverageConfidence, 1e-9)
	assert.Equal(t, "page one text\npage two text\n", rec.Text)
	assert.Equal(t, []any{"A", "B"}, rec.Fields["items"])

	// first-seen page's fields are the structural template
	assert.Equal(t, "Acme", rec.Fields["vendor_name"])
}

func TestMergeIdempotence(t *testing.T) {
	page := pageWith("same text", 0.75, map[string]any{
		"invoice_number": "INV-9",
		"items":          []any{"X"},
	})

	merged := Merge([]PageResult{page, page})
	rec := merged["INV-9"]
	require.NotNil(t, rec)

	assert.Equal(t, 2, rec.PageCount)
	assert.InDelta(t, 0.75, rec.AverageConfidence, 1e-9)
	assert.Equal(t, []any{"X", "X"}, rec.Fields["items"])
}

func TestMergeDropsPagesWithoutInvoiceNumber(t *testing.T) {
	results := []PageResult{
		pageWith("unmatched", 0.5, map[string]any{"vendor_name": "NoNumber"}),
		pageWith("blank number", 0.5, map[string]any{"invoice_number": "  "}),
		pageWith("error placeholder", 0, map[string]any{"error": "empty completion"}),
		pageWith("skipped page", 0, nil),
		pageWith("good", 0.9, map[string]any{"invoice_number": "INV-2"}),
	}

	merged := Merge(results)
	require.Len(t, merged, 1)
	assert.Contains(t, merged, "INV-2")
}

func TestMergeOrderFollowsInputSequence(t *testing.T) {
	mk := func(text, item string) PageResult {
		return pageWith(text, 0.9, map[string]any{
			"invoice_number": "INV-3",
			"items":          []any{item},
		})
	}
	results := []PageResult{mk("t1", "i1"), mk("t2", "i2"), mk("t3", "i3")}

	rec := Merge(results)["INV-3"]
	require.NotNil(t, rec)
	assert.Equal(t, "t1\nt2\nt3\n", rec.Text)
	assert.Equal(t, []any{"i1", "i2", "i3"}, rec.Fields["items"])
}

func TestMergeItemsAlwaysPresent(t *testing.T) {
	rec := Merge([]PageResult{
		pageWith("t", 0.8, map[string]any{"invoice_number": "INV-4"}),
	})["INV-4"]
	require.NotNil(t, rec)
	assert.Equal(t, []any{}, rec.Fields["items"])
}

func TestMergeDoesNotMutatePageFields(t *testing.T) {
	fields := map[string]any{"invoice_number": "INV-5", "items": []any{"A"}}
	_ = Merge([]PageResult{pageWith("t", 0.8, fields)})

	// the page's own map keeps its original items
	assert.Equal(t, []any{"A"}, fields["items"])
}

func TestMergeEmptyInput(t *testing.T) {
	assert.Empty(t, Merge(nil))
}
