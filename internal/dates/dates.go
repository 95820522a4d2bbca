// Package dates reconciles the date formats that show up on scanned
// invoices into ISO form.
package dates

import "time"

// formats tried in order: month/day/year, day/month/year, year/month/day,
// ISO year-month-day. Order matters: an ambiguous 03/04/2024 resolves as
// month/day first.
// Non-padded layouts so 3/4/2024 and 03/04/2024 both parse.
var formats = []string{
	"1/2/2006",
	"2/1/2006",
	"2006/1/2",
	"2006-1-2",
}

// Normalize parses s against the supported formats and rewrites the first
// successful parse as YYYY-MM-DD. When ref is non-nil, a candidate whose
// year differs from ref's year is rejected and the next format is tried;
// this guards against month/day transposition landing in the wrong year.
// If nothing parses, s is returned unchanged — callers must treat the
// result as best effort, possibly still raw text.
func Normalize(s string, ref *time.Time) string {
	for _, layout := range formats {
		parsed, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if ref != nil && parsed.Year() != ref.Year() {
			continue
		}
		return parsed.Format("2006-01-02")
	}
	return s
}

// NormalizeFields rewrites date-valued keys in a structured-extraction
// result in place. Non-string values and unknown keys are left alone.
func NormalizeFields(fields map[string]any, keys []string, ref *time.Time) {
	for _, k := range keys {
		if v, ok := fields[k].(string); ok && v != "" {
			fields[k] = Normalize(v, ref)
		}
	}
}
