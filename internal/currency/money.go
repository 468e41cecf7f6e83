// Package currency handles the processor's decimal wire amounts and the
// set of currencies the processor can deliver.
package currency

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// supported lists the currencies the payout processor accepts.
var supported = map[string]bool{
	"USD": true,
	"CAD": true,
	"GBP": true,
	"EUR": true,
	"AUD": true,
}

// Supported reports whether the processor can deliver the given currency.
func Supported(code string) bool {
	return supported[code]
}

// FormatCents renders a minor-unit amount as the processor's decimal wire
// form, always with two fraction digits: 95300 -> "953.00".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// ParseCents converts a decimal wire amount into minor units. Payloads
// arrive with stray whitespace, so trim before parsing. An empty string is
// zero, not an error.
func ParseCents(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}
