package sales

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATE TABLE - Per-method point rate and allowed modifier range
// =============================================================================

// RateEntry configures one payment method. A modifier m is allowed when
// ModifierMin <= m <= ModifierMax.
type RateEntry struct {
	PointRate   decimal.Decimal
	ModifierMin decimal.Decimal
	ModifierMax decimal.Decimal
}

// Allows reports whether modifier lies in the closed configured range.
func (e RateEntry) Allows(modifier decimal.Decimal) bool {
	return modifier.GreaterThanOrEqual(e.ModifierMin) && modifier.LessThanOrEqual(e.ModifierMax)
}

func (e RateEntry) validate(method PaymentMethod) error {
	if !e.ModifierMax.GreaterThan(e.ModifierMin) {
		return &ConfigError{Method: method, Reason: "max can't be less than min"}
	}
	if e.PointRate.IsNegative() {
		return &ConfigError{Method: method, Reason: "points rate can't be negative"}
	}
	return nil
}

// RateTable is immutable after NewRateTable returns and safe for concurrent
// reads without locking.
type RateTable struct {
	entries map[PaymentMethod]RateEntry
}

// NewRateTable validates every entry. A single invalid entry fails the whole
// table.
func NewRateTable(entries map[PaymentMethod]RateEntry) (*RateTable, error) {
	if len(entries) == 0 {
		return nil, &ConfigError{Reason: "no payment methods configured"}
	}
	table := &RateTable{entries: make(map[PaymentMethod]RateEntry, len(entries))}
	for method, entry := range entries {
		if _, ok := ParsePaymentMethod(string(method)); !ok {
			return nil, &ConfigError{Method: method, Reason: "unknown payment method"}
		}
		if err := entry.validate(method); err != nil {
			return nil, err
		}
		table.entries[method] = entry
	}
	return table, nil
}

// Lookup returns the entry for method. A miss means the method is not
// configured, which is a normal outcome.
func (t *RateTable) Lookup(method PaymentMethod) (RateEntry, bool) {
	e, ok := t.entries[method]
	return e, ok
}

// Methods returns the configured methods sorted by name.
func (t *RateTable) Methods() []PaymentMethod {
	methods := make([]PaymentMethod, 0, len(t.entries))
	for m := range t.entries {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}
