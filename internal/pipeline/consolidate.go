package pipeline

import (
	"maps"
	"strings"

	"github.com/invoicy-app/invoicy/internal/raster"
)

// PageResult bundles everything the pipeline learned about one page.
type PageResult struct {
	FileName   string           `json:"file_name"`
	Page       raster.Page      `json:"page"`
	Extraction PageExtraction   `json:"extraction"`
	Structured StructuredResult `json:"structured"`
}

// InvoiceRecord is the consolidated output: one record per distinct invoice
// number observed across all pages.
type InvoiceRecord struct {
	InvoiceNumber     string         `json:"invoice_number"`
	Text              string         `json:"extracted_text"`     // newline-joined per-page text, processing order
	Fields            map[string]any `json:"fields"`             // first-seen page's fields as template, items concatenated
	AverageConfidence float64        `json:"average_confidence"` // mean of contributing pages' confidences
	PageCount         int            `json:"page_count"`
}

// Merge consolidates per-page results keyed by invoice number, in
// processing order. Pages without an invoice_number are excluded — no
// orphan bucket; unparseable junk pages stay out of the final map. The
// first page carrying a number seeds the structural fields; later pages
// contribute only their text, confidence, and items.
func Merge(results []PageResult) map[string]*InvoiceRecord {
	merged := make(map[string]*InvoiceRecord)
	items := make(map[string][]any)

	for _, r := range results {
		num := invoiceNumber(r.Structured.Fields)
		if num == "" {
			continue
		}

		rec, ok := merged[num]
		if !ok {
			rec = &InvoiceRecord{
				InvoiceNumber: num,
				Fields:        maps.Clone(r.Structured.Fields),
			}
			merged[num] = rec
			if _, seeded := items[num]; !seeded {
				items[num] = []any{}
			}
		}

		rec.Text += r.Extraction.Text + "\n"
		rec.AverageConfidence += r.Extraction.AverageConfidence // running sum until finalize
		rec.PageCount++
		items[num] = append(items[num], pageItems(r.Structured.Fields)...)
	}

	for num, rec := range merged {
		rec.AverageConfidence /= float64(rec.PageCount)
		rec.Fields["items"] = items[num]
	}
	return merged
}

func invoiceNumber(fields map[string]any) string {
	v, _ := fields["invoice_number"].(string)
	return strings.TrimSpace(v)
}

func pageItems(fields map[string]any) []any {
	v, _ := fields["items"].([]any)
	return v
}
