package repository

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// timeLayouts are the datetime formats sqlite may hand back depending on
// how a value was written.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses a sqlite datetime string in any supported layout.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime format: %q", s)
}

// ParseDecimal parses a stored decimal column. Monetary values are kept
// as TEXT so no precision is lost through the driver.
func ParseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse decimal %q: %w", s, err)
	}
	return d, nil
}
