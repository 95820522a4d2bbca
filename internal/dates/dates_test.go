package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"month day year", "12/31/2023", "2023-12-31"},
		{"day month year", "31/12/2023", "2023-12-31"},
		{"year month day slashes", "2023/12/31", "2023-12-31"},
		{"iso passes through", "2023-12-31", "2023-12-31"},
		{"single digit fields", "3/4/2024", "2024-03-04"},
		{"ambiguous prefers month first", "03/04/2024", "2024-03-04"},
		{"not a date", "31st December", "31st December"},
		{"empty", "", ""},
		{"garbage", "N/A", "N/A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in, nil))
		})
	}
}

func TestNormalizeRejectsWrongYearAgainstReference(t *testing.T) {
	ref := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	// Every candidate format parses 05/06/2021 to year 2021, so the
	// reference guard rejects them all and the raw string comes back.
	assert.Equal(t, "05/06/2021", Normalize("05/06/2021", &ref))

	// Same-year parses survive the guard.
	assert.Equal(t, "2023-05-06", Normalize("05/06/2023", &ref))
}

func TestNormalizeFields(t *testing.T) {
	fields := map[string]any{
		"invoice_number": "INV-7",
		"invoice_date":   "12/31/2023",
		"due_date":       "unknown",
		"total":          42.5,
	}
	NormalizeFields(fields, []string{"invoice_date", "due_date", "total"}, nil)

	assert.Equal(t, "2023-12-31", fields["invoice_date"])
	assert.Equal(t, "unknown", fields["due_date"])
	assert.Equal(t, 42.5, fields["total"], "non-string values are left alone")
	assert.Equal(t, "INV-7", fields["invoice_number"])
}
