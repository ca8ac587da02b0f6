package sales

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice parses a caller-supplied price. Only plain non-negative decimal
// notation is accepted.
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "eE") {
		return decimal.Zero, invalidInput("wrong value as price: %q", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, invalidInput("wrong value as price: %q", s)
	}
	return d, nil
}

// FormatAmount renders d with exactly two decimals, rounding half away from
// zero (85.975 → "85.98").
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// formatConfigured renders d at the scale it was configured with, so
// 0.90 stays "0.90" and 1 stays "1".
func formatConfigured(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

// TruncatePoints returns floor(price × rate) for non-negative inputs. The
// fractional part is discarded, never rounded.
func TruncatePoints(price, rate decimal.Decimal) int64 {
	return price.Mul(rate).Truncate(0).IntPart()
}
