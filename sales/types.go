/*
Package sales provides the point-of-sale payment and sales statement engine.

PURPOSE:
  Validates incoming payments against a per-method rate table, derives the
  charged price and loyalty points, persists them, and answers bucketed
  sales statement queries over arbitrary time ranges.

KEY CONCEPTS IN THIS FILE (types.go):
  - PaymentMethod: Closed set of tender types used as rate lookup keys
  - PaymentRequest: Untrusted inbound payment
  - Payment: Immutable persisted payment row
  - SalesStatement: Derived (price, points) sum for one time bucket
  - Granularity: Bucket truncation unit

DESIGN PRINCIPLES:
  1. Precision: Prices and rates use decimal.Decimal, never float64
  2. Immutability: Payments are created once and never updated or deleted
  3. Truncation: Points are truncated per payment, never rounded

SEE ALSO:
  - rates.go: Rate table and its load-time validation
  - processor.go: Payment creation
  - aggregator.go: Sales statements with cache and retry
*/
package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT METHOD
// =============================================================================

// PaymentMethod identifies how a payment was tendered.
type PaymentMethod string

const (
	MethodCash           PaymentMethod = "CASH"
	MethodCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	MethodVisa           PaymentMethod = "VISA"
	MethodMastercard     PaymentMethod = "MASTERCARD"
	MethodAmex           PaymentMethod = "AMEX"
	MethodJCB            PaymentMethod = "JCB"
)

// PaymentMethods lists every known method in declaration order.
var PaymentMethods = []PaymentMethod{
	MethodCash, MethodCashOnDelivery, MethodVisa, MethodMastercard, MethodAmex, MethodJCB,
}

// ParsePaymentMethod returns the method named s, or false if s is not one
// of the known methods.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	for _, m := range PaymentMethods {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

func (m PaymentMethod) String() string { return string(m) }

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentRequest is a caller-supplied payment. Price is kept as text because
// parsing it is part of validation.
type PaymentRequest struct {
	Price         string
	PriceModifier decimal.Decimal
	PaymentMethod PaymentMethod
	OccurredAt    time.Time
}

// Payment is a persisted payment. ID is assigned by the store on insert.
type Payment struct {
	ID            int64
	Price         decimal.Decimal // requested price × modifier
	PriceModifier decimal.Decimal
	Points        int64
	PaymentMethod PaymentMethod
	OccurredAt    time.Time
	CreatedAt     time.Time
}

// PaymentResponse is what a successful payment creation returns.
type PaymentResponse struct {
	FinalPrice string
	Points     int64
}

// =============================================================================
// SALES STATEMENTS
// =============================================================================

// SalesStatement is the sum of all payments falling into one bucket.
type SalesStatement struct {
	TotalPrice  decimal.Decimal
	TotalPoints int64
	BucketStart time.Time
}

// StatementQuery selects payments with OccurredAt in [Start, End] grouped by
// Granularity.
type StatementQuery struct {
	Start       time.Time
	End         time.Time
	Granularity Granularity
}

// SaleLine is one formatted bucket of a sales response.
type SaleLine struct {
	BucketStart time.Time `json:"datetime"`
	Sales       string    `json:"sales"`
	Points      int64     `json:"points"`
}

// SalesResponse is the assembled, cacheable answer to a StatementQuery.
// Lines are ascending by BucketStart.
type SalesResponse struct {
	Lines []SaleLine `json:"sales"`
}

func (r SalesResponse) clone() SalesResponse {
	lines := make([]SaleLine, len(r.Lines))
	copy(lines, r.Lines)
	return SalesResponse{Lines: lines}
}
