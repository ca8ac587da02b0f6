/*
handlers.go - HTTP API handlers for payments and sales statements

PURPOSE:
  Exposes the sales engine via a JSON API. Handles HTTP request/response and
  JSON serialization, and delegates to the sales package.

ENDPOINTS:
  Payments:
    POST   /api/payments               Create a payment (makePayment)

  Sales:
    GET    /api/sales                  Bucketed sales statement (getSalesStatement)
             ?startDateTime=2022-09-01T00:00:00Z
             &endDateTime=2022-09-01T23:59:59Z
             &granularity=hour          (minute|hour|day|month|year, default hour)

  Configuration:
    GET    /api/rates                  Configured payment methods

  Operations:
    GET    /healthz                    Storage reachability
    GET    /metrics                    Prometheus metrics

ERROR HANDLING:
  Every failure is classified by sales.Classify:
  - 400: Validation errors (message is specific and safe)
  - 503: Operational errors (message is generic, cause is only logged)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/anyx/sales-engine/sales"
)

// Path hints attached to errors, named after the public operations.
const (
	pathMakePayment       = "makePayment"
	pathGetSalesStatement = "getSalesStatement"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// PaymentCreator is implemented by *sales.Processor.
type PaymentCreator interface {
	CreatePayment(ctx context.Context, req sales.PaymentRequest) (sales.PaymentResponse, error)
}

// StatementReader is implemented by *sales.Aggregator.
type StatementReader interface {
	GetSalesStatement(ctx context.Context, q sales.StatementQuery) (sales.SalesResponse, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Payments   PaymentCreator
	Statements StatementReader
	Rates      *sales.RateTable
	Health     Pinger
}

// NewHandler creates a new handler. health may be nil.
func NewHandler(payments PaymentCreator, statements StatementReader, rates *sales.RateTable, health Pinger) *Handler {
	return &Handler{
		Payments:   payments,
		Statements: statements,
		Rates:      rates,
		Health:     health,
	}
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// MakePayment creates a payment.
// POST /api/payments
func (h *Handler) MakePayment(w http.ResponseWriter, r *http.Request) {
	var req MakePaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, sales.ValidationError("invalid request body: %v", err), pathMakePayment)
		return
	}
	if req.Datetime.IsZero() {
		writeError(w, r, sales.ValidationError("datetime is required"), pathMakePayment)
		return
	}

	resp, err := h.Payments.CreatePayment(r.Context(), sales.PaymentRequest{
		Price:         req.Price,
		PriceModifier: req.PriceModifier,
		PaymentMethod: sales.PaymentMethod(req.PaymentMethod),
		OccurredAt:    req.Datetime,
	})
	if err != nil {
		writeError(w, r, err, pathMakePayment)
		return
	}

	writeJSON(w, http.StatusCreated, PaymentDTO{
		FinalPrice: resp.FinalPrice,
		Points:     resp.Points,
	})
}

// =============================================================================
// SALES HANDLERS
// =============================================================================

// GetSalesStatement returns bucketed sales for a time range.
// GET /api/sales?startDateTime=...&endDateTime=...&granularity=hour
func (h *Handler) GetSalesStatement(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	start, err := parseTimeParam(query.Get("startDateTime"), "startDateTime")
	if err != nil {
		writeError(w, r, err, pathGetSalesStatement)
		return
	}
	end, err := parseTimeParam(query.Get("endDateTime"), "endDateTime")
	if err != nil {
		writeError(w, r, err, pathGetSalesStatement)
		return
	}
	granularity, err := sales.ParseGranularity(query.Get("granularity"))
	if err != nil {
		writeError(w, r, err, pathGetSalesStatement)
		return
	}

	resp, err := h.Statements.GetSalesStatement(r.Context(), sales.StatementQuery{
		Start:       start,
		End:         end,
		Granularity: granularity,
	})
	if err != nil {
		writeError(w, r, err, pathGetSalesStatement)
		return
	}

	dto := SalesDTO{Sales: make([]SaleDTO, len(resp.Lines))}
	for i, line := range resp.Lines {
		dto.Sales[i] = SaleDTO{
			Datetime: line.BucketStart.UTC().Format(sales.TimeLayout),
			Sales:    line.Sales,
			Points:   line.Points,
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// RATE HANDLERS
// =============================================================================

// ListRates returns the configured rate table.
// GET /api/rates
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	methods := h.Rates.Methods()
	dtos := make([]RateDTO, 0, len(methods))
	for _, m := range methods {
		e, _ := h.Rates.Lookup(m)
		dtos = append(dtos, RateDTO{
			PaymentMethod: string(m),
			Modifier: ModifierDTO{
				Min: e.ModifierMin.String(),
				Max: e.ModifierMax.String(),
			},
			Points: e.PointRate.String(),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Healthz pings storage.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Health.Ping(ctx); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

func parseTimeParam(value, name string) (time.Time, error) {
	if value == "" {
		return time.Time{}, sales.ValidationError("%s is required", name)
	}
	t, err := time.Parse(sales.TimeLayout, value)
	if err != nil {
		return time.Time{}, sales.ValidationError("%s must be an RFC 3339 timestamp, got %q", name, value)
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, err error, path string) {
	e := sales.Classify(err).WithPath(path)

	status := http.StatusBadRequest
	if e.Kind == sales.KindOperational {
		status = http.StatusServiceUnavailable
	}
	zerolog.Ctx(r.Context()).Debug().Str("path", path).Str("kind", string(e.Kind)).Msg(e.Message)

	writeJSON(w, status, ErrorResponse{
		Error: e.Message,
		Kind:  string(e.Kind),
		Path:  e.Path,
	})
}
