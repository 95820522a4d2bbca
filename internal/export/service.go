package export

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/invoicy-app/invoicy/internal/pipeline"
)

// Service turns consolidated invoice records into XLSX bytes for review in a
// spreadsheet.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// InvoicesXLSX returns an XLSX workbook (as bytes) with one row per
// consolidated invoice, ordered by invoice number.
func (s *Service) InvoicesXLSX(invoices map[string]*pipeline.InvoiceRecord) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Invoices"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		_, err := f.NewSheet(sheet)
		if err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Invoice Number",
		"Invoice Date",
		"Due Date",
		"Vendor",
		"Customer",
		"Currency",
		"Total",
		"Pages",
		"Avg Confidence",
		"Items",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	numbers := make([]string, 0, len(invoices))
	for num := range invoices {
		numbers = append(numbers, num)
	}
	sort.Strings(numbers)

	row := 2
	for _, num := range numbers {
		rec := invoices[num]
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, rec.InvoiceNumber)
		write(2, stringField(rec.Fields, "invoice_date"))
		write(3, stringField(rec.Fields, "due_date"))
		write(4, stringField(rec.Fields, "vendor_name"))
		write(5, stringField(rec.Fields, "customer_name"))
		write(6, stringField(rec.Fields, "currency"))
		if total, ok := rec.Fields["total"]; ok && total != nil {
			write(7, total)
		} else {
			write(7, "")
		}
		write(8, rec.PageCount)
		write(9, fmt.Sprintf("%.4f", rec.AverageConfidence))
		write(10, itemCount(rec.Fields))

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 18) // invoice number
	_ = f.SetColWidth(sheet, "B", "C", 12) // dates
	_ = f.SetColWidth(sheet, "D", "E", 28) // vendor/customer

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"invoices", len(invoices),
		"duration_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func stringField(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func itemCount(fields map[string]any) int {
	if fields == nil {
		return 0
	}
	items, ok := fields["items"].([]any)
	if !ok {
		return 0
	}
	return len(items)
}
