/*
handlers_test.go - HTTP tests for the sales API

Tests for:
- Payment creation (201, validation 400, operational 503)
- Sales statements (JSON shape, query validation)
- Rate listing, health, metrics exposure
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyx/sales-engine/cache"
	"github.com/anyx/sales-engine/config"
	"github.com/anyx/sales-engine/metrics"
	"github.com/anyx/sales-engine/sales"
	"github.com/anyx/sales-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type brokenStore struct{}

func (brokenStore) SavePayment(context.Context, sales.Payment) (sales.Payment, error) {
	return sales.Payment{}, errors.New("database is locked")
}

func (brokenStore) QueryGroupedSums(context.Context, time.Time, time.Time, sales.Granularity) ([]sales.SalesStatement, error) {
	return nil, errors.New("database is locked")
}

func (brokenStore) Ping(context.Context) error { return errors.New("database is locked") }

type testServer struct {
	router http.Handler
}

// newTestServer wires the default rate table (MASTERCARD [0.95, 1], 0.03
// points) over store.
func newTestServer(t *testing.T, store interface {
	sales.Store
	Pinger
}) *testServer {
	t.Helper()
	rates, err := config.Default().RateTable()
	require.NoError(t, err)

	collector := metrics.New()
	opts := []sales.Option{
		sales.WithRetryPolicy(sales.RetryPolicy{Attempts: 2}),
		sales.WithObserver(collector),
	}
	h := NewHandler(
		sales.NewProcessor(store, rates, opts...),
		sales.NewAggregator(store, cache.NewMemory(), opts...),
		rates,
		store,
	)
	return &testServer{router: NewRouter(h, zerolog.Nop(), collector)}
}

func newSQLiteServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return newTestServer(t, store)
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func salesURL(start, end, granularity string) string {
	q := url.Values{}
	if start != "" {
		q.Set("startDateTime", start)
	}
	if end != "" {
		q.Set("endDateTime", end)
	}
	if granularity != "" {
		q.Set("granularity", granularity)
	}
	return "/api/sales?" + q.Encode()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestMakePayment_Created(t *testing.T) {
	// GIVEN: MASTERCARD with modifier 0.95 on 90.50
	// THEN: 201 with two-decimal final price and floor(2.715) points
	s := newSQLiteServer(t)

	rec := s.do(t, http.MethodPost, "/api/payments", `{
		"price": "90.50",
		"priceModifier": 0.95,
		"paymentMethod": "MASTERCARD",
		"datetime": "2022-09-01T10:00:00Z"
	}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decode[PaymentDTO](t, rec)
	assert.Equal(t, "85.98", resp.FinalPrice)
	assert.Equal(t, int64(2), resp.Points)
}

func TestMakePayment_QuotedModifier(t *testing.T) {
	s := newSQLiteServer(t)

	rec := s.do(t, http.MethodPost, "/api/payments",
		`{"price":"100","priceModifier":"1","paymentMethod":"CASH","datetime":"2022-09-01T10:00:00Z"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "100.00", decode[PaymentDTO](t, rec).FinalPrice)
}

func TestMakePayment_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"bad price", `{"price":"ten","priceModifier":1,"paymentMethod":"CASH","datetime":"2022-09-01T10:00:00Z"}`,
			`wrong value as price: "ten"`},
		{"unknown method", `{"price":"10","priceModifier":1,"paymentMethod":"PAYPAL","datetime":"2022-09-01T10:00:00Z"}`,
			"Invalid payment method in request or invalid config"},
		{"modifier out of range", `{"price":"10","priceModifier":0.5,"paymentMethod":"CASH","datetime":"2022-09-01T10:00:00Z"}`,
			"priceModifier can not be less than 0.9 and more than 1"},
		{"missing datetime", `{"price":"10","priceModifier":1,"paymentMethod":"CASH"}`,
			"datetime is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSQLiteServer(t)

			rec := s.do(t, http.MethodPost, "/api/payments", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.message, resp.Error)
			assert.Equal(t, "validation", resp.Kind)
			assert.Equal(t, "makePayment", resp.Path)
		})
	}
}

func TestMakePayment_MalformedBodies(t *testing.T) {
	for name, body := range map[string]string{
		"not json":         `price=10`,
		"unknown field":    `{"price":"10","priceModifier":1,"paymentMethod":"CASH","datetime":"2022-09-01T10:00:00Z","tip":5}`,
		"bad datetime":     `{"price":"10","priceModifier":1,"paymentMethod":"CASH","datetime":"yesterday"}`,
		"trailing garbage": `{"price":"10","priceModifier":1,"paymentMethod":"CASH","datetime":"2022-09-01T10:00:00Z"} {}`,
	} {
		t.Run(name, func(t *testing.T) {
			s := newSQLiteServer(t)

			rec := s.do(t, http.MethodPost, "/api/payments", body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation", decode[ErrorResponse](t, rec).Kind)
		})
	}
}

func TestMakePayment_StorageFailureIsGeneric(t *testing.T) {
	s := newTestServer(t, brokenStore{})

	rec := s.do(t, http.MethodPost, "/api/payments",
		`{"price":"10","priceModifier":1,"paymentMethod":"CASH","datetime":"2022-09-01T10:00:00Z"}`)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, sales.GenericFailureMessage, resp.Error)
	assert.Equal(t, "operational", resp.Kind)
	assert.Equal(t, "makePayment", resp.Path)
	assert.NotContains(t, rec.Body.String(), "locked")
}

// =============================================================================
// SALES STATEMENTS
// =============================================================================

func TestGetSalesStatement_JSONShape(t *testing.T) {
	s := newSQLiteServer(t)
	for _, body := range []string{
		`{"price":"100","priceModifier":1,"paymentMethod":"CASH","datetime":"2022-09-01T10:05:00Z"}`,
		`{"price":"100","priceModifier":1,"paymentMethod":"CASH","datetime":"2022-09-01T10:55:00Z"}`,
		`{"price":"50","priceModifier":1,"paymentMethod":"CASH","datetime":"2022-09-01T13:00:00Z"}`,
	} {
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/payments", body).Code)
	}

	rec := s.do(t, http.MethodGet, salesURL("2022-09-01T00:00:00Z", "2022-09-01T23:59:59Z", ""), "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"sales":[
		{"datetime":"2022-09-01T10:00:00Z","sales":"200.00","points":10},
		{"datetime":"2022-09-01T13:00:00Z","sales":"50.00","points":2}
	]}`, rec.Body.String())
}

func TestGetSalesStatement_EmptyIsArray(t *testing.T) {
	s := newSQLiteServer(t)

	rec := s.do(t, http.MethodGet, salesURL("2022-09-01T00:00:00Z", "2022-09-02T00:00:00Z", "day"), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sales":[]}`, rec.Body.String())
}

func TestGetSalesStatement_OffsetTimestamps(t *testing.T) {
	s := newSQLiteServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/payments",
		`{"price":"10","priceModifier":1,"paymentMethod":"CASH","datetime":"2022-09-01T12:30:00+02:00"}`).Code)

	rec := s.do(t, http.MethodGet, salesURL("2022-09-01T12:00:00+02:00", "2022-09-01T13:00:00+02:00", "hour"), "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[SalesDTO](t, rec)
	require.Len(t, resp.Sales, 1)
	assert.Equal(t, "2022-09-01T10:00:00Z", resp.Sales[0].Datetime)
}

func TestGetSalesStatement_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"missing start", salesURL("", "2022-09-01T00:00:00Z", "")},
		{"missing end", salesURL("2022-09-01T00:00:00Z", "", "")},
		{"bad start", salesURL("2022/09/01", "2022-09-01T00:00:00Z", "")},
		{"unknown granularity", salesURL("2022-09-01T00:00:00Z", "2022-09-02T00:00:00Z", "week")},
		{"start after end", salesURL("2022-09-02T00:00:00Z", "2022-09-01T00:00:00Z", "")},
	}

	s := newSQLiteServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tt.target, "")

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, "validation", resp.Kind)
			assert.Equal(t, "getSalesStatement", resp.Path)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestGetSalesStatement_StorageFailureIsGeneric(t *testing.T) {
	s := newTestServer(t, brokenStore{})

	rec := s.do(t, http.MethodGet, salesURL("2022-09-01T00:00:00Z", "2022-09-02T00:00:00Z", ""), "")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, sales.GenericFailureMessage, resp.Error)
	assert.Equal(t, "operational", resp.Kind)
	assert.Equal(t, "getSalesStatement", resp.Path)
}

// =============================================================================
// RATES, HEALTH, METRICS
// =============================================================================

func TestListRates(t *testing.T) {
	s := newSQLiteServer(t)

	rec := s.do(t, http.MethodGet, "/api/rates", "")

	require.Equal(t, http.StatusOK, rec.Code)
	rates := decode[[]RateDTO](t, rec)
	require.Len(t, rates, len(sales.PaymentMethods))
	assert.Equal(t, "AMEX", rates[0].PaymentMethod)
	assert.Equal(t, RateDTO{
		PaymentMethod: "AMEX",
		Modifier:      ModifierDTO{Min: "0.98", Max: "1.01"},
		Points:        "0.02",
	}, rates[0])
}

func TestHealthz(t *testing.T) {
	ok := newSQLiteServer(t).do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, ok.Code)
	assert.JSONEq(t, `{"status":"ok"}`, ok.Body.String())

	down := newTestServer(t, brokenStore{}).do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, down.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newSQLiteServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/payments",
		`{"price":"10","priceModifier":1,"paymentMethod":"VISA","datetime":"2022-09-01T10:00:00Z"}`).Code)

	rec := s.do(t, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `sales_payments_created_total{method="VISA"} 1`)
	assert.Contains(t, body, `sales_http_request_duration_seconds_count{route="/api/payments",status="201"} 1`)
}

func TestRequestLogger_CarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()
	rates, err := config.Default().RateTable()
	require.NoError(t, err)

	h := NewHandler(sales.NewProcessor(store, rates), sales.NewAggregator(store, nil), rates, store)
	router := NewRouter(h, zerolog.New(&buf), nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), buf.String())
	assert.Equal(t, "req-123", line["request_id"])
	assert.Equal(t, "/healthz", line["path"])
	assert.EqualValues(t, 200, line["status"])

	// Without a collector /metrics is not mounted
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
