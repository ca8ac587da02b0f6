/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Field names follow the
  public contract (camelCase) and decouple it from sales.* types.

TYPES:
  Payment:
    MakePaymentRequest, PaymentDTO

  Sales:
    SalesDTO, SaleDTO

  Rates:
    RateDTO, ModifierDTO

  Errors:
    ErrorResponse

VALIDATION:
  Validation is done by the sales package, not in DTOs. Handlers only reject
  bodies and timestamps that cannot be decoded at all.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// MakePaymentRequest is the body of POST /api/payments. priceModifier may be
// a JSON number or a quoted decimal.
type MakePaymentRequest struct {
	Price         string          `json:"price"`
	PriceModifier decimal.Decimal `json:"priceModifier"`
	PaymentMethod string          `json:"paymentMethod"`
	Datetime      time.Time       `json:"datetime"`
}

// PaymentDTO is the response of a successful payment.
type PaymentDTO struct {
	FinalPrice string `json:"finalPrice"`
	Points     int64  `json:"points"`
}

// SalesDTO is the response of GET /api/sales.
type SalesDTO struct {
	Sales []SaleDTO `json:"sales"`
}

// SaleDTO is one bucket of a sales statement.
type SaleDTO struct {
	Datetime string `json:"datetime"`
	Sales    string `json:"sales"`
	Points   int64  `json:"points"`
}

// RateDTO describes one configured payment method.
type RateDTO struct {
	PaymentMethod string      `json:"paymentMethod"`
	Modifier      ModifierDTO `json:"modifier"`
	Points        string      `json:"points"`
}

type ModifierDTO struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// ErrorResponse is returned for every failed request. Kind is "validation"
// or "operational"; Path names the operation that failed.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Path  string `json:"path,omitempty"`
}
